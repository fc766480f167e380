package cache

import "fmt"

func RecordKey(dataType, id string) string {
	return fmt.Sprintf("record:%s:%s", dataType, id)
}

func AnalysisStatusKey(recordID string) string {
	return fmt.Sprintf("analysis:%s", recordID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
