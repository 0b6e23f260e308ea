package logger

import (
	"strconv"
	"time"
)

// Field is one key=value pair attached to every record a logger emits.
// Values are rendered to strings up front; a Field never holds live state.
type Field struct {
	Key   string
	Value string
}

type Fields []Field

func StringField(key, value string) Field {
	return Field{Key: key, Value: value}
}

func IntField(key string, value int) Field {
	return Field{Key: key, Value: strconv.Itoa(value)}
}

func DurationField(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}
