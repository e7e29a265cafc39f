// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// errorFields are checked in order when reading an error body. "detail" is
// what FastAPI style backends send.
var errorFields = []string{"error", "detail", "message"}

// ErrorMessage returns the human-readable message from a JSON error body, or
// "" when the body carries none.
func ErrorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	doc := gjson.ParseBytes(body)
	for _, field := range errorFields {
		v := doc.Get(field)
		switch {
		case v.Type == gjson.String && strings.TrimSpace(v.Str) != "":
			return v.Str
		case v.IsObject():
			if msg := v.Get("message"); msg.Type == gjson.String && msg.Str != "" {
				return msg.Str
			}
		case v.IsArray():
			// FastAPI validation errors: [{"msg": "..."}]
			if msg := v.Get("0.msg"); msg.Type == gjson.String && msg.Str != "" {
				return msg.Str
			}
		}
	}
	return ""
}

// JoinURL appends an endpoint path to a base URL. Trailing and leading
// slashes are normalized so "http://h:8000/" + "/query" becomes
// "http://h:8000/query".
func JoinURL(base, endpoint string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", err
	}
	return u.JoinPath(endpoint).String(), nil
}
