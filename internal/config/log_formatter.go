package config

import (
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	red         = 31
	green       = 32
	yellow      = 33
	blue        = 36
	gray        = 37
	lightGreen  = 92
	lightYellow = 93
	cyan        = 96
)

// SgFormatter renders entries as key=value pairs with fields sorted by key.
// NoColor drops ANSI sequences for log collectors.
type SgFormatter struct {
	NoColor bool
	// Source adds the caller location; the frame depth matches plain logrus calls.
	Source bool
}

func (f *SgFormatter) Format(entry *log.Entry) ([]byte, error) {
	levelColor := blue
	switch entry.Level {
	case log.DebugLevel, log.TraceLevel:
		levelColor = gray
	case log.WarnLevel:
		levelColor = yellow
	case log.ErrorLevel, log.FatalLevel, log.PanicLevel:
		levelColor = red
	}

	var b strings.Builder
	f.pair(&b, "level", strings.ToUpper(entry.Level.String())[:4], levelColor)
	f.pair(&b, "ts", entry.Time.Format("2006-01-02 15:04:05.000"), lightYellow)
	if f.Source {
		if _, file, line, ok := runtime.Caller(6); ok {
			f.pair(&b, "source", fmt.Sprintf("%s:%d", file, line), lightYellow)
		}
	}

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		val := entry.Data[k]
		if err, ok := val.(error); ok {
			val = err.Error()
		}
		m, err := json.Marshal(val)
		if err != nil || len(m) == 0 {
			continue
		}
		s := string(m)
		valueColor := cyan
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			valueColor = green
		} else if strings.HasPrefix(s, "\"") {
			valueColor = lightYellow
		}
		f.pair(&b, k, s, valueColor)
	}
	f.pair(&b, "msg", strconv.Quote(entry.Message), lightGreen)

	output := strings.TrimPrefix(b.String(), " ")
	output = strings.ReplaceAll(output, "\r", "\\r")
	output = strings.ReplaceAll(output, "\n", "\\n") + "\n"
	return []byte(output), nil
}

func (f *SgFormatter) pair(b *strings.Builder, key, value string, valueColor int) {
	b.WriteByte(' ')
	if f.NoColor {
		b.WriteString(key + "=" + value)
		return
	}
	fmt.Fprintf(b, "\x1b[%dm%s\x1b[0m=\x1b[%dm%s\x1b[0m", cyan, key, valueColor, value)
}
