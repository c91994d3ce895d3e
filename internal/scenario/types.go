// SPDX-License-Identifier: MIT

// Package scenario implements the streaming shot-list builder: scenario
// synthesis, deterministic segmentation, per-shot prompt synthesis and
// validator-gated dialogue generation.
package scenario

import "encoding/json"

// T2IPrompt is the structured English text-to-image prompt of one shot.
type T2IPrompt struct {
	Background           string `json:"background"`
	CharacterPoseAndGaze string `json:"character_pose_and_gaze"`
	Product              string `json:"product"`
	CameraAngle          string `json:"camera_angle"`
}

// ImageEditPrompt is the structured English edit instruction of one shot.
type ImageEditPrompt struct {
	PoseChange      string `json:"pose_change"`
	GazeChange      string `json:"gaze_change"`
	Expression      string `json:"expression"`
	AdditionalEdits string `json:"additional_edits"`
}

// Shot is one timed segment of a timetable.
type Shot struct {
	Index            int             `json:"index"`
	TimeStart        float64         `json:"time_start"`
	TimeEnd          float64         `json:"time_end"`
	SceneDescription string          `json:"scene_description"`
	Dialogue         string          `json:"dialogue"`
	T2IPrompt        T2IPrompt       `json:"t2i_prompt"`
	ImageEditPrompt  ImageEditPrompt `json:"image_edit_prompt"`
	BackgroundSounds string          `json:"background_sounds_prompt"`
}

// Timetable is the complete ordered tiling of the video duration.
type Timetable struct {
	TotalDuration int    `json:"total_duration"`
	SceneCount    int    `json:"scene_count"`
	Shots         []Shot `json:"timetable"`
}

// Event is one unit of the streaming protocol. The four variants are
// metadata, scene, complete and error; each serializes to the envelope
// {"type": ..., "data": ...}.
type Event interface {
	json.Marshaler
	event()
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// MetadataEvent opens a stream.
type MetadataEvent struct {
	TotalDuration int    `json:"total_duration"`
	SceneCount    int    `json:"scene_count"`
	Status        string `json:"status"`
}

func (MetadataEvent) event() {}

func (e MetadataEvent) MarshalJSON() ([]byte, error) {
	type payload MetadataEvent
	return json.Marshal(envelope{Type: "metadata", Data: payload(e)})
}

// SceneEvent carries one shot, emitted in index order.
type SceneEvent struct {
	Shot
}

func (SceneEvent) event() {}

func (e SceneEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{Type: "scene", Data: e.Shot})
}

// CompleteEvent closes a successful stream.
type CompleteEvent struct {
	Status      string `json:"status"`
	TotalScenes int    `json:"total_scenes"`
}

func (CompleteEvent) event() {}

func (e CompleteEvent) MarshalJSON() ([]byte, error) {
	type payload CompleteEvent
	return json.Marshal(envelope{Type: "complete", Data: payload(e)})
}

// ErrorEvent terminates a stream on fatal failure.
type ErrorEvent struct {
	Message string `json:"message"`
}

func (ErrorEvent) event() {}

func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	type payload ErrorEvent
	return json.Marshal(envelope{Type: "error", Data: payload(e)})
}
