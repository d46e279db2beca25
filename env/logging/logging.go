// Copyright The droidenv Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package logging configures the process-wide loggers used by the
// environment and its binaries.
package logging

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// SetOutput configures logging output for standard loggers.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
	logrus.SetOutput(w)
}

// SetLogLevel parses and applies a logrus level name; invalid names are
// fatal.
func SetLogLevel(logLevel string) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to set log level. Valid log levels are:", logrus.AllLevels)
	}

	logrus.SetLevel(level)
	logrus.SetFormatter(&InternalFormatter{})
}

// InternalFormatter renders internal log lines as
// "LEVEL[timestamp] message key=value ...".
type InternalFormatter struct{}

// Format implements logrus.Formatter.
func (f *InternalFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	b.WriteString(strings.ToUpper(entry.Level.String()))
	b.WriteString("[")
	b.WriteString(entry.Time.Format("15:04:05.000"))
	b.WriteString("] ")
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteString("\n")
	return []byte(b.String()), nil
}
