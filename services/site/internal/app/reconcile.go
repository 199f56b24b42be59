package app

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"citefleurie/internal/util"
	"citefleurie/pkg/domain"
	"citefleurie/pkg/storage"
)

// orphanGrace keeps a just-uploaded object whose record may still be in flight.
const orphanGrace = time.Hour

// ReconcileReport lists the inconsistencies between object store and records.
type ReconcileReport struct {
	Objects         int                  `json:"objects"`
	Records         int                  `json:"records"`
	OrphanedObjects []storage.ObjectInfo `json:"orphanedObjects"`
	DanglingRecords []domain.MenuAsset   `json:"danglingRecords"`
	PurgedObjects   []string             `json:"purgedObjects,omitempty"`
	PurgeFailures   []string             `json:"purgeFailures,omitempty"`
}

// Reconcile compares objects under the menu prefix with menu records. With
// purge, orphaned objects older than the grace window are deleted. Dangling
// records are only reported; removing them is an admin decision.
func (a *App) Reconcile(ctx context.Context, purge bool) (ReconcileReport, error) {
	var (
		objects []storage.ObjectInfo
		records []domain.MenuAsset
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		listCtx, cancel := a.bounded(gctx)
		defer cancel()
		var err error
		objects, err = a.objects.List(listCtx, menuKeyPrefix)
		return err
	})
	g.Go(func() error {
		listCtx, cancel := a.bounded(gctx)
		defer cancel()
		var err error
		records, err = a.store.ListMenuAssets(listCtx)
		return err
	})
	if err := g.Wait(); err != nil {
		return ReconcileReport{}, storageErr("could not list menus for reconciliation", err)
	}

	report := ReconcileReport{
		Objects:         len(objects),
		Records:         len(records),
		OrphanedObjects: []storage.ObjectInfo{},
		DanglingRecords: []domain.MenuAsset{},
	}
	recorded := make(map[string]struct{}, len(records))
	for _, r := range records {
		recorded[r.StorageKey] = struct{}{}
	}
	live := make(map[string]struct{}, len(objects))
	for _, o := range objects {
		live[o.Key] = struct{}{}
		if _, ok := recorded[o.Key]; !ok {
			report.OrphanedObjects = append(report.OrphanedObjects, o)
		}
	}
	for _, r := range records {
		if _, ok := live[r.StorageKey]; !ok {
			report.DanglingRecords = append(report.DanglingRecords, r)
		}
	}
	sort.Slice(report.OrphanedObjects, func(i, j int) bool {
		return report.OrphanedObjects[i].Key < report.OrphanedObjects[j].Key
	})

	logger := util.LoggerFromContext(ctx)
	if purge {
		cutoff := a.now().Add(-orphanGrace)
		for _, o := range report.OrphanedObjects {
			if o.LastModified.After(cutoff) {
				continue
			}
			delCtx, cancel := a.bounded(ctx)
			err := a.objects.Delete(delCtx, o.Key)
			cancel()
			if err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
				logger.Warn("menu_orphan_purge_failed", "storage_key", o.Key, "err", err)
				report.PurgeFailures = append(report.PurgeFailures, o.Key)
				continue
			}
			report.PurgedObjects = append(report.PurgedObjects, o.Key)
		}
	}
	logger.Info("menu_reconciled",
		"objects", report.Objects,
		"records", report.Records,
		"orphaned", len(report.OrphanedObjects),
		"dangling", len(report.DanglingRecords),
		"purged", len(report.PurgedObjects),
	)
	return report, nil
}
