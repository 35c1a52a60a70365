// Package observability provides metrics for the job series service.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrSuccess   = "success"
	attrFrom      = "from"
	attrTo        = "to"
	attrTrigger   = "trigger"
	attrOperation = "operation"
	attrResult    = "result"
	attrKind      = "kind"
	attrState     = "state"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	// Normalize paths with IDs to reduce cardinality
	// /v1/jobs/42/files -> /v1/jobs/{jobId}/files
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

func fromAttr(status string) attribute.KeyValue {
	return attribute.String(attrFrom, status)
}

func toAttr(status string) attribute.KeyValue {
	return attribute.String(attrTo, status)
}

func triggerAttr(trigger string) attribute.KeyValue {
	return attribute.String(attrTrigger, trigger)
}

func operationAttr(op string) attribute.KeyValue {
	return attribute.String(attrOperation, op)
}

func resultAttr(result string) attribute.KeyValue {
	return attribute.String(attrResult, result)
}

func kindAttr(kind string) attribute.KeyValue {
	return attribute.String(attrKind, kind)
}

func stateAttr(state string) attribute.KeyValue {
	return attribute.String(attrState, state)
}

// placeholders maps a collection segment to the placeholder for the ID that follows it.
var placeholders = map[string]string{
	"jobs":   "{jobId}",
	"series": "{seriesId}",
}

// normalizePath replaces the ID after /v1/jobs/ and /v1/series/ with a placeholder.
func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	if len(segments) < 4 || segments[1] != "v1" {
		return path
	}
	if p, ok := placeholders[segments[2]]; ok && segments[3] != "" {
		segments[3] = p
	}
	return strings.Join(segments, "/")
}
