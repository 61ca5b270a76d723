package logging

import "context"

type fieldsKey struct{}

// WithFields returns a context whose records carry fields in addition to any
// already attached. Later keys replace earlier ones.
func WithFields(ctx context.Context, fields ...Field) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(fields) == 0 {
		return ctx
	}
	existing := ContextFields(ctx)
	merged := make([]Field, 0, len(existing)+len(fields))
	merged = append(merged, existing...)
	merged = append(merged, normalizeFields(fields)...)
	return context.WithValue(ctx, fieldsKey{}, dedupeFields(merged))
}

// ContextFields returns the fields attached to ctx by WithFields.
func ContextFields(ctx context.Context) []Field {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey{}).([]Field)
	return fields
}

// WithRun tags ctx with the workflow run and commit identifiers.
func WithRun(ctx context.Context, runID, commitSHA string) context.Context {
	fields := make([]Field, 0, 2)
	if runID != "" {
		fields = append(fields, String(FieldWorkflowRun, runID))
	}
	if commitSHA != "" {
		fields = append(fields, String(FieldCommitSHA, commitSHA))
	}
	return WithFields(ctx, fields...)
}

// RunFromContext returns the workflow run identifier attached by WithRun.
func RunFromContext(ctx context.Context) (string, bool) {
	for _, f := range ContextFields(ctx) {
		if f.Key == FieldWorkflowRun {
			return f.Value.String(), true
		}
	}
	return "", false
}
