// SPDX-License-Identifier: MIT

package comfy

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
)

// Graph is a node-graph in the backend's wire format: node id → node.
// The dict shape is the backend's protocol and is kept as-is at this
// boundary.
type Graph map[string]*Node

// Node is one graph node.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
	Meta      *Meta          `json:"_meta,omitempty"`
}

// Meta carries the human title used to identify parameter nodes.
type Meta struct {
	Title string `json:"title"`
}

func (n *Node) title() string {
	if n.Meta == nil {
		return ""
	}
	return n.Meta.Title
}

// ParseGraph decodes a template file body.
func ParseGraph(data []byte) (Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse graph: %w", err)
	}
	for id, n := range g {
		if n == nil || n.ClassType == "" {
			return nil, fmt.Errorf("graph node %s has no class_type", id)
		}
		if n.Inputs == nil {
			n.Inputs = map[string]any{}
		}
	}
	return g, nil
}

// Clone deep-copies the graph so per-request rewrites never touch the
// cached template.
func (g Graph) Clone() Graph {
	raw, err := json.Marshal(g)
	if err != nil {
		return Graph{}
	}
	var out Graph
	if err := json.Unmarshal(raw, &out); err != nil {
		return Graph{}
	}
	return out
}

// nodesByClass returns the ids of nodes with the given class_type in
// ascending numeric id order. Non-numeric ids sort after numeric ones.
func (g Graph) nodesByClass(classType string) []string {
	var ids []string
	for id, n := range g {
		if n.ClassType == classType {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA == nil && errB == nil {
			return a < b
		}
		if errA == nil {
			return true
		}
		if errB == nil {
			return false
		}
		return ids[i] < ids[j]
	})
	return ids
}

// SetLoadImages binds staged filenames to the LoadImage nodes, in
// ascending node-id order. Extra nodes keep their template value.
func (g Graph) SetLoadImages(names ...string) error {
	ids := g.nodesByClass("LoadImage")
	if len(ids) < len(names) {
		return fmt.Errorf("graph has %d LoadImage nodes, need %d", len(ids), len(names))
	}
	for i, name := range names {
		g[ids[i]].Inputs["image"] = name
	}
	return nil
}

// SetLoadAudio binds a staged audio file to the LoadAudio node.
func (g Graph) SetLoadAudio(name string) error {
	ids := g.nodesByClass("LoadAudio")
	if len(ids) == 0 {
		return fmt.Errorf("graph has no LoadAudio node")
	}
	g[ids[0]].Inputs["audio"] = name
	return nil
}

// SetLoadVideo binds a staged video file to the VHS_LoadVideo node and
// pins its frame rate when fps > 0.
func (g Graph) SetLoadVideo(name string, fps float64) error {
	ids := g.nodesByClass("VHS_LoadVideo")
	if len(ids) == 0 {
		return fmt.Errorf("graph has no VHS_LoadVideo node")
	}
	g[ids[0]].Inputs["video"] = name
	if fps > 0 {
		g[ids[0]].Inputs["force_rate"] = fps
	}
	return nil
}

// SetPositivePrompt rewrites the positive text encoder. Two encoder
// families are recognized: CLIPTextEncode titled "Positive", and
// TextEncodeQwenImageEditPlus whose template prompt is non-empty (the
// empty one is the negative branch).
func (g Graph) SetPositivePrompt(prompt string) error {
	for _, id := range g.nodesByClass("CLIPTextEncode") {
		if strings.Contains(g[id].title(), "Positive") {
			g[id].Inputs["text"] = prompt
			return nil
		}
	}
	for _, id := range g.nodesByClass("TextEncodeQwenImageEditPlus") {
		if s, ok := g[id].Inputs["prompt"].(string); ok && s != "" {
			g[id].Inputs["prompt"] = prompt
			return nil
		}
	}
	return fmt.Errorf("graph has no positive prompt encoder")
}

// SetNegativePrompt rewrites the negative text encoder if the template
// has one. Missing is not an error.
func (g Graph) SetNegativePrompt(prompt string) {
	for _, id := range g.nodesByClass("CLIPTextEncode") {
		if strings.Contains(g[id].title(), "Negative") {
			g[id].Inputs["text"] = prompt
		}
	}
}

// SetAmbientPrompt rewrites the MMAudioSampler prompt.
func (g Graph) SetAmbientPrompt(prompt string) error {
	ids := g.nodesByClass("MMAudioSampler")
	if len(ids) == 0 {
		return fmt.Errorf("graph has no MMAudioSampler node")
	}
	g[ids[0]].Inputs["prompt"] = prompt
	return nil
}

// SetEasyInt sets the "easy int" parameter node with the given title
// (Width, Height, Length, Steps). Missing nodes are not an error: not
// every template exposes every scalar.
func (g Graph) SetEasyInt(title string, value int) {
	for _, id := range g.nodesByClass("easy int") {
		if g[id].title() == title {
			g[id].Inputs["value"] = value
		}
	}
}

// SetEasyFloat sets the "easy float" parameter node with the given
// title (Cfg).
func (g Graph) SetEasyFloat(title string, value float64) {
	for _, id := range g.nodesByClass("easy float") {
		if g[id].title() == title {
			g[id].Inputs["value"] = value
		}
	}
}

// SetLipsyncParams sets the LatentSyncNode tuning inputs.
func (g Graph) SetLipsyncParams(lipsExpression float64, inferenceSteps int) error {
	ids := g.nodesByClass("LatentSyncNode")
	if len(ids) == 0 {
		return fmt.Errorf("graph has no LatentSyncNode")
	}
	g[ids[0]].Inputs["lips_expression"] = lipsExpression
	g[ids[0]].Inputs["inference_steps"] = inferenceSteps
	return nil
}

// SetFPS pins the frame rate across every node that carries one, so the
// lip-sync chain stays consistent end to end.
func (g Graph) SetFPS(fps float64) {
	for _, n := range g {
		switch n.ClassType {
		case "LatentSyncNode", "VideoLengthAdjuster":
			n.Inputs["fps"] = fps
		case "VHS_VideoCombine":
			n.Inputs["frame_rate"] = fps
		}
	}
}

// RandomizeSeeds replaces every sampler seed the client did not pin.
// Keeping template seeds would make retries deterministic failures.
func (g Graph) RandomizeSeeds() {
	for _, n := range g {
		for _, key := range []string{"seed", "noise_seed"} {
			if _, ok := n.Inputs[key]; ok {
				n.Inputs[key] = rand.Int63n(1 << 48)
			}
		}
	}
}

// SetSeed pins every sampler seed to a client-supplied value.
func (g Graph) SetSeed(seed int64) {
	for _, n := range g {
		for _, key := range []string{"seed", "noise_seed"} {
			if _, ok := n.Inputs[key]; ok {
				n.Inputs[key] = seed
			}
		}
	}
}
