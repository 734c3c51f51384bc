// Package config provides unified configuration loading from files,
// environment variables, and CLI flags using viper and pflag.
//
// Resolution order (highest wins):
//  1. CLI flags
//  2. Environment variables (prefix OTTERSCALE_TASKS_)
//  3. Config file (config.yaml in . or /etc/otterscale-tasks/)
//  4. Compiled defaults
package config

import (
	"strings"
	"time"
)

// Viper keys for the controller connection.
const (
	keyArgoCDServerURL      = "argocd.server_url"
	keyArgoCDToken          = "argocd.token"
	keyArgoCDAuthClientID   = "argocd.auth.client_id"
	keyArgoCDAuthAuthority  = "argocd.auth.authority"
	keyArgoCDRequestTimeout = "argocd.request_timeout"
	keyArgoCDTokenTTL       = "argocd.token_ttl"
	keyArgoCDInsecure       = "argocd.insecure"
)

// Viper keys for server-mode configuration.
const (
	keyServerAddress        = "server.address"
	keyServerAllowedOrigins = "server.allowed_origins"
	keyServerOIDCIssuerURL  = "server.oidc.issuer_url"
	keyServerOIDCClientID   = "server.oidc.client_id"
	keyServerAPIKey         = "server.api_key"
)

// Viper keys for one-shot sync defaults.
const (
	keySyncRevision       = "sync.revision"
	keySyncDryRun         = "sync.dry_run"
	keySyncPrune          = "sync.prune"
	keySyncResources      = "sync.resources"
	keySyncWait           = "sync.wait"
	keySyncTimeout        = "sync.timeout"
	keySyncWatchHealth    = "sync.watch_health"
	keySyncWatchSync      = "sync.watch_sync"
	keySyncWatchSuspended = "sync.watch_suspended"
	keySyncWatchOperation = "sync.watch_operation"
	keySyncRetryAttempts  = "sync.retry_attempts"
	keySyncRetryBackoff   = "sync.retry_backoff"
)

const keyLogDebug = "log.debug"

// Option describes a single configuration entry: its viper key, the
// corresponding CLI flag name, the compiled default, and a
// human-readable description shown in --help output.
type Option struct {
	Key         string
	Flag        string
	Default     any
	Description string
}

// GlobalOptions apply to every command.
var GlobalOptions = []Option{
	{Key: keyLogDebug, Flag: toFlag(keyLogDebug), Default: false, Description: "Enable debug logging"},
}

// ArgoCDOptions configure the controller connection.
var ArgoCDOptions = []Option{
	{Key: keyArgoCDServerURL, Flag: toFlag(keyArgoCDServerURL), Default: "https://argocd-server.argocd.svc", Description: "Controller API server url"},
	{Key: keyArgoCDToken, Flag: toFlag(keyArgoCDToken), Default: "", Description: "Controller API bearer token"},
	{Key: keyArgoCDAuthClientID, Flag: toFlag(keyArgoCDAuthClientID), Default: "otterscale-tasks", Description: "Client id used to key the token cache"},
	{Key: keyArgoCDAuthAuthority, Flag: toFlag(keyArgoCDAuthAuthority), Default: "", Description: "Token authority used to key the token cache"},
	{Key: keyArgoCDRequestTimeout, Flag: toFlag(keyArgoCDRequestTimeout), Default: 30 * time.Second, Description: "Timeout of non-streaming controller calls"},
	{Key: keyArgoCDTokenTTL, Flag: toFlag(keyArgoCDTokenTTL), Default: 10 * time.Minute, Description: "Maximum lifetime of a cached token"},
	{Key: keyArgoCDInsecure, Flag: toFlag(keyArgoCDInsecure), Default: false, Description: "Skip TLS verification of the controller"},
}

// ServerOptions defines the configuration entries available in server
// mode. Each entry is registered as a viper default and a CLI flag.
var ServerOptions = []Option{
	{Key: keyServerAddress, Flag: toFlag(keyServerAddress), Default: ":8299", Description: "Server listen address"},
	{Key: keyServerAllowedOrigins, Flag: toFlag(keyServerAllowedOrigins), Default: []string{}, Description: "Server allowed origins"},
	{Key: keyServerOIDCIssuerURL, Flag: toFlag(keyServerOIDCIssuerURL), Default: "", Description: "OIDC issuer url; empty disables token verification"},
	{Key: keyServerOIDCClientID, Flag: toFlag(keyServerOIDCClientID), Default: "otterscale", Description: "OIDC client id"},
	{Key: keyServerAPIKey, Flag: toFlag(keyServerAPIKey), Default: "", Description: "Static API key accepted as a bearer token"},
}

// SyncOptions defines the defaults of the one-shot sync command.
var SyncOptions = []Option{
	{Key: keySyncRevision, Flag: toFlag(keySyncRevision), Default: "", Description: "Target revision to patch before syncing"},
	{Key: keySyncDryRun, Flag: toFlag(keySyncDryRun), Default: false, Description: "Preview the sync without applying it"},
	{Key: keySyncPrune, Flag: toFlag(keySyncPrune), Default: false, Description: "Delete resources no longer in the source"},
	{Key: keySyncResources, Flag: toFlag(keySyncResources), Default: []string{}, Description: "Resources to sync as GROUP:KIND:[NAMESPACE/]NAME"},
	{Key: keySyncWait, Flag: toFlag(keySyncWait), Default: false, Description: "Wait until the application is reconciled"},
	{Key: keySyncTimeout, Flag: toFlag(keySyncTimeout), Default: time.Duration(0), Description: "Idle timeout of the watch; 0 waits forever"},
	{Key: keySyncWatchHealth, Flag: toFlag(keySyncWatchHealth), Default: true, Description: "Wait for a healthy application"},
	{Key: keySyncWatchSync, Flag: toFlag(keySyncWatchSync), Default: true, Description: "Wait for a synced application"},
	{Key: keySyncWatchSuspended, Flag: toFlag(keySyncWatchSuspended), Default: false, Description: "Accept a suspended application"},
	{Key: keySyncWatchOperation, Flag: toFlag(keySyncWatchOperation), Default: true, Description: "Wait until no operation is in flight"},
	{Key: keySyncRetryAttempts, Flag: toFlag(keySyncRetryAttempts), Default: 1, Description: "Attempts for sync-and-wait"},
	{Key: keySyncRetryBackoff, Flag: toFlag(keySyncRetryBackoff), Default: 5 * time.Second, Description: "Initial delay between attempts"},
}

// toFlag converts a viper key like "sync.watch_health" into a CLI flag
// like "watch-health" by lower-casing, replacing dots and underscores
// with hyphens, and stripping the "server-" or "sync-" prefix.
func toFlag(key string) string {
	flag := strings.ToLower(key)
	flag = strings.ReplaceAll(flag, ".", "-")
	flag = strings.ReplaceAll(flag, "_", "-")
	flag = strings.TrimPrefix(flag, "server-")
	flag = strings.TrimPrefix(flag, "sync-")
	return flag
}
