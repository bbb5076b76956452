package initialize

import (
	"context"
	"entryready/config"
	"entryready/internal/database"
	"entryready/internal/logger"
	"entryready/internal/repositories"
)

// Initialize prepares a production database: the rule file must validate and
// submissions interrupted by the last shutdown are closed as failed.
func Initialize(db database.DB, config config.Config, log logger.Logger) error {
	log = log.Function("Initialize")
	log.Info("Initializing essential production data")
	ctx := context.Background()

	ruleSet, err := repositories.LoadRuleSet(ctx, config.RulesPath)
	if err != nil {
		return log.Err("rule file is invalid", err, "path", config.RulesPath)
	}
	log.Info("Rule file validated", "version", ruleSet.Version, "destinations", len(ruleSet.BaseDestinationRules))

	recovered, err := repositories.NewDACRepository(db).FailStalePending(ctx, config.PendingSubmissionTimeout)
	if err != nil {
		return log.Err("failed to close interrupted submissions", err)
	}

	log.Info("Initialization complete", "interruptedSubmissions", recovered)
	return nil
}
