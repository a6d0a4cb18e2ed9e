package db

import (
	"context"
	"fmt"

	"github.com/alwitt/strongbox/models"
)

// GlobalSystemParamEntryID ID of the singleton system parameter entry
const GlobalSystemParamEntryID = "system-parameters"

// loadSystemParams fetch the singleton entry, creating it in PRE_INITIALIZATION on first use
func (d *databaseImpl) loadSystemParams() (SystemParamsDBEntry, error) {
	var entry SystemParamsDBEntry
	tmp := d.db.
		Where(SystemParamsDBEntry{SystemParams: models.SystemParams{ID: GlobalSystemParamEntryID}}).
		Attrs(SystemParamsDBEntry{SystemParams: models.SystemParams{State: models.SystemStatePreInit}}).
		FirstOrCreate(&entry)
	if tmp.Error != nil {
		return SystemParamsDBEntry{}, fmt.Errorf("failed to load system parameters [%w]", tmp.Error)
	}
	return entry, nil
}

/*
GetSystemParamEntry fetch the global singleton system parameter entry

	@param ctx context.Context - execution context
	@returns the entry
*/
func (d *databaseImpl) GetSystemParamEntry(_ context.Context) (models.SystemParams, error) {
	entry, err := d.loadSystemParams()
	if err != nil {
		return models.SystemParams{}, err
	}
	return entry.SystemParams, nil
}

// moveSystemState persist a state change of the entry, and record its system event
func (d *databaseImpl) moveSystemState(
	entry *SystemParamsDBEntry, newState models.SystemStateENUMType, metadata interface{},
) error {
	if entry.State == newState {
		return nil
	}
	if err := entry.ValidateNextState(newState); err != nil {
		return err
	}
	entry.State = newState
	if tmp := d.db.Model(entry).Update("state", newState); tmp.Error != nil {
		return fmt.Errorf("key hierarchy state change to '%s' failed [%w]", newState, tmp.Error)
	}

	eventType := models.SystemEventTypeInitializing
	if newState == models.SystemStateRunning {
		eventType = models.SystemEventTypeInitialized
	}
	if _, err := d.defineNewSystemEvent(eventType, metadata); err != nil {
		return fmt.Errorf("failed to log key hierarchy state change [%w]", err)
	}
	return nil
}

/*
InitializeKeyHierarchy record the KEK derivation parameters of a new system, moving it
from PRE_INITIALIZATION through INITIALIZING to RUNNING. Parameters are recorded only once.

	@param ctx context.Context - execution context
	@param params models.KeyHierarchyParams - KEK derivation parameters
*/
func (d *databaseImpl) InitializeKeyHierarchy(
	_ context.Context, params models.KeyHierarchyParams,
) error {
	if err := d.validator.Struct(&params); err != nil {
		return fmt.Errorf("key hierarchy parameters are not valid [%w]", err)
	}

	entry, err := d.loadSystemParams()
	if err != nil {
		return err
	}
	if entry.KEKCheck != nil {
		return fmt.Errorf("key hierarchy already initialized [%w]", models.ErrConflict)
	}

	if err := d.moveSystemState(&entry, models.SystemStateInit, nil); err != nil {
		return err
	}

	kekCheck := params.KEKCheck
	if tmp := d.db.Model(&entry).Updates(map[string]interface{}{
		"kdf_salt":       params.KDFSalt,
		"kdf_iterations": params.KDFIterations,
		"kek_check":      &kekCheck,
	}); tmp.Error != nil {
		return fmt.Errorf("failed to record KDF parameters [%w]", tmp.Error)
	}

	return d.moveSystemState(
		&entry,
		models.SystemStateRunning,
		models.SystemEventKeyHierarchyRelated{KDFIterations: params.KDFIterations},
	)
}
