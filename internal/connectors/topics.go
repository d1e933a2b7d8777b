package connectors

const (
	TopicConnStatus = "conn.status"
	TopicSession    = "link.session"
	TopicMessageIn  = "message.in"
	TopicQueueDrop  = "queue.drop"
)
