// Package prompts provides the externalized LLM prompt templates for the
// forum pipeline. Prompts are stored as JSON and embedded at compile time.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

//go:embed *.json
var promptFiles embed.FS

// ForumFile is the prompt file carrying every pipeline stage prompt.
const ForumFile = "forum.json"

// Prompt keys in forum.json. Each stage has a system prompt; user prompts are
// assembled from the normalized payload at call time.
const (
	KeyTriage          = "triage_system"
	KeyDeepClassifier  = "deep_classifier_system"
	KeyGenuineDoubt    = "genuine_doubt_system"
	KeyCorrections     = "pointing_out_corrections_system"
	KeyVariation       = "variation_of_question_system"
	KeyAlternate       = "alternate_approach_system"
	KeyFormatter       = "response_formatter_system"
	KeyTranscribeImage = "transcribe_image_system"
	KeyTranscribeUser  = "transcribe_image_user"
)

// cache stores parsed prompt files to avoid repeated JSON parsing
var (
	cache   = make(map[string]map[string]string)
	cacheMu sync.RWMutex
)

// Get retrieves a prompt by filename and key.
// Returns an error if the file or key is not found.
func Get(filename, key string) (string, error) {
	prompts, err := loadFile(filename)
	if err != nil {
		return "", err
	}

	prompt, exists := prompts[key]
	if !exists {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}

	return prompt, nil
}

// Forum retrieves a prompt from forum.json by key.
func Forum(key string) (string, error) {
	return Get(ForumFile, key)
}

// ForTool returns the system-prompt key for a deep-classification tool name.
func ForTool(tool string) (string, error) {
	switch tool {
	case "Genuine_Doubt":
		return KeyGenuineDoubt, nil
	case "Pointing_Out_Corrections":
		return KeyCorrections, nil
	case "Variation_of_Question":
		return KeyVariation, nil
	case "Alternate_Approach":
		return KeyAlternate, nil
	}
	return "", fmt.Errorf("no prompt for tool %q", tool)
}

// Format replaces template placeholders in the form {{.Key}} with values from data.
// This is a simple template system for prompt customization.
func Format(template string, data map[string]string) string {
	result := template
	for key, value := range data {
		placeholder := fmt.Sprintf("{{.%s}}", key)
		result = strings.ReplaceAll(result, placeholder, value)
	}
	return result
}

// loadFile loads and caches a prompt file.
func loadFile(filename string) (map[string]string, error) {
	cacheMu.RLock()
	if prompts, exists := cache[filename]; exists {
		cacheMu.RUnlock()
		return prompts, nil
	}
	cacheMu.RUnlock()

	data, err := promptFiles.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	}

	var prompts map[string]string
	if err := json.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
	}

	cacheMu.Lock()
	cache[filename] = prompts
	cacheMu.Unlock()

	return prompts, nil
}

// ClearCache clears the prompt cache. Useful for testing.
func ClearCache() {
	cacheMu.Lock()
	cache = make(map[string]map[string]string)
	cacheMu.Unlock()
}
