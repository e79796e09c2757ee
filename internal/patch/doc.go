// Package patch applies patch units to an extracted ROM tree.
//
// A patch unit is a directory whose files mirror the ROM layout. Two optional
// manifests at its root list paths to remove before the overlay is copied:
// .rommerdel (directories) and .rommerfdel (files). An optional patch.yaml
// carries descriptive metadata plus tags and an Android version requirement
// used to select units.
//
// Units are applied strictly in configured order. Within a unit, directory
// deletions run first, then file deletions, then the overlay copy. Later
// units overwrite earlier ones; there is no conflict detection and no rollback.
package patch
