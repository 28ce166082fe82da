package etl

import "time"

// BuildSubject is the NATS subject announcing a finished knowledge-base
// build.
const BuildSubject = "doctis.kb.built"

// BuildEvent is published after a build's cache has been persisted. Servers
// subscribed to BuildSubject reload the index from the cache.
type BuildEvent struct {
	Records int       `json:"records"`
	Model   string    `json:"model"`
	BuiltAt time.Time `json:"built_at"`
}
