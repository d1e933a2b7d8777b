package app

const (
	Name              = "visionlink"
	ConfigFilename    = "config.json"
	DBFilename        = "history.db"
	LogFilename       = "visionlink.log"
	RecentHistoryLoad = 50
)
