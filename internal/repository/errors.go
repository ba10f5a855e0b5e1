// Package repository implements persistence over MySQL with raw SQL.
// Reservation lookups map missing rows to booking.ErrNotFound and failed
// conditional updates to booking.ErrStaleState so the services never see
// driver errors for expected outcomes.  The sentinels below cover the
// back-office user table.
package repository

import "errors"

// ErrUserNotFound is returned when no user matches the lookup.  Handlers
// answer it with 401 on login so account existence is not revealed.
var ErrUserNotFound = errors.New("user not found")

// ErrEmailExists is returned when inserting a user whose email is taken.
var ErrEmailExists = errors.New("email already exists")
