// Package confloader loads beamcal configuration with koanf.
//
// Sources, later overriding earlier:
//
//  1. Defaults already present in the target struct
//  2. The YAML configuration file
//  3. BEAMCAL_ environment variables
//  4. Command-line overrides
//
// Environment variables nest with a double underscore so that keys may keep
// their own underscores: BEAMCAL_STATE__MAX_RESTORE_ATTEMPTS=6 sets
// state.max_restore_attempts.
package confloader
