package logger

import "context"

type fieldsKey struct{}

// WithFields returns a context carrying fields that every adapter adds to
// log lines written with it. Later keys override earlier ones.
func WithFields(ctx context.Context, fields map[string]interface{}) context.Context {
	merged := make(map[string]interface{}, len(fields))
	if existing, ok := ctx.Value(fieldsKey{}).(map[string]interface{}); ok {
		for k, v := range existing {
			merged[k] = v
		}
	}
	for k, v := range fields {
		merged[k] = v
	}
	return context.WithValue(ctx, fieldsKey{}, merged)
}

// mergeFields combines the context fields with the first explicit field map.
func mergeFields(ctx context.Context, fields ...map[string]interface{}) map[string]interface{} {
	var fromCtx map[string]interface{}
	if ctx != nil {
		fromCtx, _ = ctx.Value(fieldsKey{}).(map[string]interface{})
	}
	if len(fromCtx) == 0 {
		if len(fields) > 0 {
			return fields[0]
		}
		return nil
	}
	merged := make(map[string]interface{}, len(fromCtx))
	for k, v := range fromCtx {
		merged[k] = v
	}
	if len(fields) > 0 {
		for k, v := range fields[0] {
			merged[k] = v
		}
	}
	return merged
}
