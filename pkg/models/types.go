package models

import "github.com/lib/pq"

// StringList is a Postgres text[] column that marshals as a JSON array.
type StringList = pq.StringArray
