// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldSession   = "session_id"
	FieldProject   = "project_id"
	FieldPrompt    = "prompt_id"
	FieldClient    = "client_id"
	FieldPath      = "path"
	FieldDuration  = "duration_ms"
)
