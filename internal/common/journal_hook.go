// Inspired by github.com/wercker/journalhook (MIT license)
package common

import (
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
	logrus "github.com/sirupsen/logrus"
)

// JournalHook forwards logrus records to the systemd journal, mapping
// structured fields to journal variables.
type JournalHook struct{}

var severityMap = map[logrus.Level]journal.Priority{
	logrus.DebugLevel: journal.PriDebug,
	logrus.InfoLevel:  journal.PriInfo,
	logrus.WarnLevel:  journal.PriWarning,
	logrus.ErrorLevel: journal.PriErr,
	logrus.FatalLevel: journal.PriCrit,
	logrus.PanicLevel: journal.PriEmerg,
}

// Journal variable names are upper-case ASCII and must not begin with
// an underscore.
func journalKey(key string) string {
	key = strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'a' && r <= 'z':
			return r - 32
		default:
			return '_'
		}
	}, key)
	return strings.TrimPrefix(key, "_")
}

// The journal wants strings but logrus takes anything.
func journalVars(data map[string]interface{}) map[string]string {
	vars := make(map[string]string, len(data))
	for k, v := range data {
		vars[journalKey(k)] = fmt.Sprint(v)
	}
	return vars
}

func (hook *JournalHook) Fire(entry *logrus.Entry) error {
	return journal.Send(entry.Message, severityMap[entry.Level], journalVars(entry.Data))
}

func (hook *JournalHook) Levels() []logrus.Level {
	return logrus.AllLevels
}
