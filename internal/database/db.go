package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = pass
	cfg.Net = "tcp"
	cfg.Addr = host + ":" + port
	cfg.DBName = name
	// DATETIME -> time.Time, kept in UTC
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	// conditional UPDATEs report matched rows, not changed rows
	cfg.ClientFoundRows = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// schema creates the tables the service reads and writes.  produits is
// owned by the catalog back office; it is created here only so a fresh
// database can boot.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS produits (
		id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		nom        VARCHAR(120)   NOT NULL,
		marque     VARCHAR(120)   NOT NULL DEFAULT '',
		categorie  VARCHAR(80)    NOT NULL DEFAULT '',
		prix       DECIMAL(10,2)  NOT NULL,
		quantite   INT            NOT NULL DEFAULT 1,
		image_url  VARCHAR(255)   NOT NULL DEFAULT ''
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id                   BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		produit_id           BIGINT UNSIGNED NOT NULL,
		date_depart          DATE           NOT NULL,
		date_retour          DATE           NOT NULL,
		nom                  VARCHAR(50)    NOT NULL,
		prenom               VARCHAR(50)    NOT NULL,
		telephone            VARCHAR(16)    NOT NULL,
		email                VARCHAR(190)   NOT NULL,
		lieu_prise           VARCHAR(40)    NOT NULL,
		lieu_retour          VARCHAR(40)    NOT NULL,
		nombre_jours         INT            NOT NULL,
		prix_total           DECIMAL(10,2)  NOT NULL,
		statut               VARCHAR(16)    NOT NULL DEFAULT 'EN_ATTENTE',
		date_creation        DATETIME       NOT NULL,
		date_modification    DATETIME       NOT NULL,
		transaction_id       VARCHAR(64)    NULL,
		payment_method       VARCHAR(16)    NULL,
		payment_status       VARCHAR(16)    NOT NULL DEFAULT '',
		payment_initiated_at DATETIME       NULL,
		capture_id           VARCHAR(64)    NULL,
		UNIQUE KEY uq_reservations_transaction (transaction_id),
		KEY idx_reservations_overlap (produit_id, statut, date_depart, date_retour),
		KEY idx_reservations_email (email),
		KEY idx_reservations_pending (statut, date_creation),
		CONSTRAINT fk_reservations_produit FOREIGN KEY (produit_id) REFERENCES produits(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email         VARCHAR(190) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role          VARCHAR(16)  NOT NULL DEFAULT 'ADMIN',
		is_active     TINYINT(1)   NOT NULL DEFAULT 1,
		created_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates missing tables.  Existing tables are left untouched.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
