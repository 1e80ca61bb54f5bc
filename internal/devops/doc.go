// Package devops is a thin read-only client for the Azure DevOps REST API.
// It returns plain records with stable identity fields; retry and
// degradation policy are left to callers, who treat lookup failures as
// fatal for the current poll attempt.
package devops
