package pipeline

import "strings"

const pipelineComponentName = "pipeline"

func instanceCorrelationID(inst Instance) string {
	if inst.Address == "" {
		return "n/a"
	}
	return inst.TraceID.String()
}

func (s *Service) logAttrs(operation, correlationID string, attrs []any) []any {
	base := []any{
		"component", pipelineComponentName,
		"operation", strings.TrimSpace(operation),
		"correlation_id", strings.TrimSpace(correlationID),
	}
	return append(base, attrs...)
}

func (s *Service) logDebug(operation, correlationID, message string, attrs ...any) {
	s.logger.Debug(message, s.logAttrs(operation, correlationID, attrs)...)
}

func (s *Service) logInfo(operation, correlationID, message string, attrs ...any) {
	s.logger.Info(message, s.logAttrs(operation, correlationID, attrs)...)
}

func (s *Service) logWarn(operation, correlationID, message string, attrs ...any) {
	s.logger.Warn(message, s.logAttrs(operation, correlationID, attrs)...)
}

func (s *Service) recordErrorWithContext(category string, err error, operation, correlationID string, attrs ...any) {
	if err == nil {
		return
	}
	s.metrics.RecordError(category)
	base := []any{
		"component", pipelineComponentName,
		"operation", strings.TrimSpace(operation),
		"category", strings.TrimSpace(category),
		"correlation_id", strings.TrimSpace(correlationID),
		"error", err.Error(),
	}
	s.logger.Error("pipeline error", append(base, attrs...)...)
}
