package cloud

import (
	"context"
	"errors"
	"strings"

	"github.com/dgellow/resource-desk/internal/provider"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type database struct {
	c *Client
}

func (d *database) Collection(name string) provider.Query {
	return &query{c: d.c, name: name}
}

type query struct {
	c     *Client
	name  string
	limit int
}

func (q *query) Limit(n int) provider.Query {
	cp := *q
	cp.limit = n
	return &cp
}

// Get runs the query. Each document carries its ID under "_id".
func (q *query) Get(ctx context.Context) ([]provider.Document, error) {
	if q.c.fs == nil {
		return nil, provider.NewError(provider.CodeDatabaseUnavailable, "no document database configured")
	}
	if !q.c.signedIn() {
		return nil, provider.NewError(provider.CodeNotAuthenticated, "not signed in")
	}

	coll := q.c.fs.Collection(q.name)
	if coll == nil || strings.Contains(q.name, "/") {
		return nil, provider.NewError(provider.CodeCollectionNotExist, "invalid collection name "+q.name)
	}

	fq := coll.Query
	if q.limit > 0 {
		fq = fq.Limit(q.limit)
	}

	iter := fq.Documents(ctx)
	defer iter.Stop()

	var docs []provider.Document
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, firestoreError(q.name, err)
		}
		doc := provider.Document(snap.Data())
		if doc == nil {
			doc = provider.Document{}
		}
		doc["_id"] = snap.Ref.ID
		docs = append(docs, doc)
	}
	return docs, nil
}

func firestoreError(collection string, err error) error {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return perr
	}

	code := provider.CodeInternal
	switch status.Code(err) {
	case codes.NotFound:
		code = provider.CodeCollectionNotExist
	case codes.PermissionDenied:
		code = provider.CodePermissionDenied
	case codes.Unauthenticated:
		code = provider.CodeNotAuthenticated
	case codes.Unavailable:
		code = provider.CodeDatabaseUnavailable
	}
	return &provider.Error{Code: code, Message: "query on " + collection + " failed", Err: err}
}
