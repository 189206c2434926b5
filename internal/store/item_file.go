// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ItemFile is one stored file attached to a CMS item, typically an image
// referenced by image-templating markers.
type ItemFile struct {
	ID           int64
	ItemID       int64
	FileName     string
	PropertyName string
	ContentType  string
	Title        string
	Ordering     int
}

// ItemFileStore reads item file metadata for image templating.
type ItemFileStore struct {
	db *sql.DB
}

// NewItemFileStore creates an ItemFileStore.
func NewItemFileStore(db *sql.DB) *ItemFileStore {
	return &ItemFileStore{db: db}
}

// FindImages returns the image files for an item id or filename, optionally
// filtered by property name, ordered by their configured ordering. Only
// rows with an image content type qualify.
func (s *ItemFileStore) FindImages(ctx context.Context, itemID int64, fileName, propertyName string) ([]ItemFile, error) {
	conditions := []string{"content_type LIKE 'image%'"}
	var args []any

	if itemID > 0 {
		args = append(args, itemID)
		conditions = append(conditions, fmt.Sprintf("item_id = $%d", len(args)))
	} else {
		args = append(args, fileName)
		conditions = append(conditions, fmt.Sprintf("file_name = $%d", len(args)))
	}
	if propertyName != "" {
		args = append(args, propertyName)
		conditions = append(conditions, fmt.Sprintf("property_name = $%d", len(args)))
	}

	query := "SELECT id, item_id, file_name, property_name, content_type, title, ordering FROM wiser_item_file WHERE "
	for i, c := range conditions {
		if i > 0 {
			query += " AND "
		}
		query += c
	}
	query += " ORDER BY ordering, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find item images: %w", err)
	}
	defer rows.Close()

	var files []ItemFile
	for rows.Next() {
		var f ItemFile
		if err := rows.Scan(&f.ID, &f.ItemID, &f.FileName, &f.PropertyName, &f.ContentType, &f.Title, &f.Ordering); err != nil {
			return nil, fmt.Errorf("scan item file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
