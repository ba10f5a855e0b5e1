package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vala/car-rental-reservation/internal/booking"
	"github.com/vala/car-rental-reservation/internal/model"
)

// VehicleRepo reads the produits catalog table.  The reservation workflow
// never writes to it.
type VehicleRepo struct {
	db *sql.DB
}

func NewVehicleRepo(db *sql.DB) *VehicleRepo { return &VehicleRepo{db: db} }

// GetVehicle fetches a vehicle by id.  booking.ErrNotFound is returned for
// an unknown id.
func (r *VehicleRepo) GetVehicle(ctx context.Context, id uint64) (*model.Vehicle, error) {
	var (
		v        model.Vehicle
		category sql.NullString
		imageURL sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT id, nom, marque, categorie, prix, quantite, image_url FROM produits WHERE id = ? LIMIT 1",
		id).Scan(&v.ID, &v.Name, &v.Brand, &category, &v.DailyRate, &v.Quantity, &imageURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	v.Category = category.String
	v.ImageURL = imageURL.String
	return &v, nil
}

// Store combines the repositories the booking and payment services need.
type Store struct {
	*ReservationRepo
	*VehicleRepo
}

// NewStore binds every repository to db.
func NewStore(db *sql.DB) *Store {
	return &Store{ReservationRepo: NewReservationRepo(db), VehicleRepo: NewVehicleRepo(db)}
}
