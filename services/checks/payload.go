// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package checks

import (
	"encoding/json"

	"github.com/harborworks/breakwater/services/checks/cache"
)

// Cached verdicts carry their message list so a failing hit replays the
// same report text as the original run.

func marshalPayload(entry *cache.Entry, messages []string) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	entry.Payload = data
	return nil
}

func unmarshalPayload(entry *cache.Entry, messages *[]string) error {
	if len(entry.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(entry.Payload, messages)
}
