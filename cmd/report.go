package cmd

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// report logs v as indented JSON, the way results are shown to the operator.
func report(log *zap.Logger, what string, v any) error {
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting %s: %w", what, err)
	}
	log.Info(string(pretty), zap.String("report", what))
	return nil
}
