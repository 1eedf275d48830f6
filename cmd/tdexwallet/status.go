package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

var status = cli.Command{
	Name:   "status",
	Usage:  "get the sync status of the wallet and the status of the data source",
	Action: statusAction,
}

func statusAction(ctx *cli.Context) error {
	w, cleanup, err := openWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	node, err := w.NodeStatus(ctx.Context)
	if err != nil {
		return err
	}
	syncInfo := w.SyncStatus()

	resp := map[string]interface{}{
		"wallet":         ctx.String(walletFlag.Name),
		"status":         syncInfo.Status.String(),
		"synced_height":  syncInfo.Cursor.Height,
		"synced_hash":    syncInfo.Cursor.Hash,
		"tip_height":     node.TipHeight,
		"node_reachable": node.Reachable,
		"locked":         w.IsLocked(),
	}
	if syncInfo.LastSyncedAt > 0 {
		resp["last_synced_at"] = time.Unix(syncInfo.LastSyncedAt, 0).UTC().Format(time.RFC3339)
	}
	if syncInfo.LastError != "" {
		resp["last_error"] = syncInfo.LastError
	}
	printJSON(resp)
	return nil
}
