package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"limetuna/internal/domain"
)

var (
	errArgsNotArray     = errors.New("init arguments must be a JSON array")
	errOptionsNotObject = errors.New("init options must be an object")
	errLanguageType     = errors.New("init option language must be a string")
)

// parseInitOptions reads args[0]. A missing or null first argument means no
// options; anything else must be an object whose language, if present, is a string.
func parseInitOptions(list []json.RawMessage, argsErr error) (domain.InitOptions, error) {
	if argsErr != nil {
		return domain.InitOptions{}, fmt.Errorf("%w: %v", errArgsNotArray, argsErr)
	}
	if len(list) == 0 || isNull(list[0]) {
		return domain.InitOptions{}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(list[0], &fields); err != nil || fields == nil {
		return domain.InitOptions{}, errOptionsNotObject
	}

	raw, ok := fields["language"]
	if !ok {
		return domain.InitOptions{}, nil
	}
	var language string
	if isNull(raw) {
		return domain.InitOptions{}, errLanguageType
	}
	if err := json.Unmarshal(raw, &language); err != nil {
		return domain.InitOptions{}, errLanguageType
	}
	return domain.InitOptions{Language: &language}, nil
}
