// Package prompt renders the text-to-video prompt for a /cat request.
package prompt

import (
	"strings"
)

// subject pins the cat's appearance so every generation matches the reference image.
const subject = "Create a video that features the iconic white Persian cat from the reference image - " +
	"maintain its exact appearance: the fluffy pure white fur, round face, flat nose, " +
	"blue eyes with that characteristic stern expression, and small ears hidden in the fluff. "

const sceneSuffix = "Create an appropriate environment and background for this action, " +
	"but keep the cat's appearance exactly as shown in the reference image. " +
	"The cat should look like it was taken directly from the reference and placed into this new scene."

// DefaultCamera is used when no keyword matches.
const DefaultCamera = "Cinematic medium shot with smooth, steady camera movement and natural lighting."

// MaxDirections caps how many matched camera directions end up in one prompt.
const MaxDirections = 2

type direction struct {
	keyword string
	camera  string
}

// directions is scanned in order; earlier entries win when more than MaxDirections match.
var directions = []direction{
	{"chase", "Dynamic tracking shot following the cat's pursuit at ground level."},
	{"jump", "Low-angle slow-motion shot capturing the full leap."},
	{"run", "Smooth lateral tracking shot at the cat's eye height."},
	{"fly", "Sweeping aerial shot following the cat through the sky."},
	{"swim", "Split-level shot half above and half below the water line."},
	{"dance", "Rhythmic orbiting camera circling the cat."},
	{"play", "Playful handheld shot with quick reframing."},
	{"eat", "Close-up on the cat's face and the food, shallow depth of field."},
	{"drink", "Close-up on the cat's face and the food, shallow depth of field."},
	{"sleep", "Gentle static close-up with soft, warm focus."},
	{"drive", "Front-facing shot through the windshield."},
	{"cook", "Overhead shot of the kitchen counter, then a slow push-in."},
	{"butterfly", "Rack focus between the cat and the butterfly."},
	{"snow", "Wide establishing shot of the snowy landscape, then a slow dolly-in."},
	{"beach", "Wide golden-hour shot along the shoreline."},
	{"space", "Floating zero-gravity camera drifting around the cat."},
}

// Build renders the full prompt for the cat performing action on object. It is deterministic.
func Build(action, object string) string {
	var b strings.Builder
	b.WriteString(subject)
	b.WriteString("\nScene: The white Persian cat is ")
	b.WriteString(action)
	b.WriteString(" ")
	b.WriteString(object)
	b.WriteString(". ")
	b.WriteString(sceneSuffix)
	b.WriteString("\nCamera: ")
	b.WriteString(Camera(action, object))
	return b.String()
}

// Camera picks up to MaxDirections camera directions matching action/object, case-insensitively.
func Camera(action, object string) string {
	text := strings.ToLower(action + " " + object)
	var matched []string
	for _, d := range directions {
		if len(matched) == MaxDirections {
			break
		}
		if strings.Contains(text, d.keyword) {
			matched = append(matched, d.camera)
		}
	}
	if len(matched) == 0 {
		return DefaultCamera
	}
	return strings.Join(matched, " ")
}
