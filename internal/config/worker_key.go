package config

type WorkerKeyStruct struct {
	PersistAnswersQueue string
	NotifyEventsQueue   string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue: "persist_answers_queue",
	NotifyEventsQueue:   "notify_events_queue",
}
