// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package obslog is SERAPH's ambient leveled logger, shared by every
// compiler pass and by the Strand scheduler and Atlas runtime. It wraps
// golang/glog — the only logging dependency present anywhere in the
// retrieved example pack (google-kati's go.mod) — rather than inventing a
// bespoke logger, per the rule that ambient concerns always reach for a
// pack-grounded library (see DESIGN.md).
package obslog

import (
	"fmt"
	"strings"

	"github.com/golang/glog"
)

// KV is a single structured key/value pair, rendered glog-style
// ("key=value key2=value2 message") since glog itself has no native
// key/value API.
type KV struct {
	Key   string
	Value any
}

func render(msg string, kvs []KV) string {
	if len(kvs) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for _, kv := range kvs {
		fmt.Fprintf(&b, " %s=%v", kv.Key, kv.Value)
	}
	return b.String()
}

// Info logs at info level.
func Info(msg string, kvs ...KV) {
	glog.Infoln(render(msg, kvs))
}

// Warn logs at warning level.
func Warn(msg string, kvs ...KV) {
	glog.Warningln(render(msg, kvs))
}

// Error logs at error level.
func Error(msg string, kvs ...KV) {
	glog.Errorln(render(msg, kvs))
}

// Field is a convenience constructor for a KV pair.
func Field(key string, value any) KV { return KV{Key: key, Value: value} }
