package config

// WorkerKeyStruct names the Redis lists shared between producers and workers.
type WorkerKeyStruct struct {
	// CompletedAttemptsQueue receives one hand-off per completed session for
	// the results-display collaborator.
	CompletedAttemptsQueue string
	// SecurityEventsQueue buffers monitor messages for the event relay.
	SecurityEventsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	CompletedAttemptsQueue: "completed_attempts_queue",
	SecurityEventsQueue:    "security_events_queue",
}
