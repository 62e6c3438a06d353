// Package share implements SharingEngine (spec.md §4.7): translating
// share/revoke/addAuthorizer/removeAuthorizer/shareOnBehalfOf/
// revokeOnBehalfOf into AK placements via record.Manager's
// akcache.Manager, plus server policy PUTs through a narrow
// PolicyServer collaborator interface.
package share

import (
	"context"
	"fmt"

	"github.com/tozny/e3db-go/apierr"
	"github.com/tozny/e3db-go/record"
)

// Action is the policy document's top-level verb.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
)

// Grant is what the policy allows or denies.
type Grant string

const (
	GrantRead       Grant = "read"
	GrantAuthorizer Grant = "authorizer"
)

// PolicyServer is the narrow HTTP surface SharingEngine depends on for
// policy documents, matching PUT /v1/storage/policy/{user}/{writer}/
// {reader}/{type} from spec.md §6.
type PolicyServer interface {
	PutPolicy(ctx context.Context, userID, writerID, readerID, recordType string, action Action, grant Grant) error
	HasAuthorizerPolicy(ctx context.Context, recordType, authorizerID string) (bool, error)
}

// Engine is the SharingEngine, scoped to the client identified by
// rc.SelfID().
type Engine struct {
	rc       *record.Manager
	policies PolicyServer
	selfID   string
}

// New constructs an Engine over the given RecordCrypto (for AK
// get-or-create and the underlying akcache.Manager) and PolicyServer.
func New(rc *record.Manager, policies PolicyServer) *Engine {
	return &Engine{rc: rc, policies: policies, selfID: rc.SelfID()}
}

// Share grants readerID read access to recordType, a no-op when
// readerID is this client itself.
func (e *Engine) Share(ctx context.Context, recordType, readerID string) error {
	if readerID == e.selfID {
		return nil
	}
	ak, err := e.rc.EnsureAccessKey(ctx, recordType)
	if err != nil {
		return err
	}
	if err := e.rc.AccessKeys().PutAccessKey(ctx, e.selfID, e.selfID, readerID, recordType, ak); err != nil {
		return err
	}
	return e.policies.PutPolicy(ctx, e.selfID, e.selfID, readerID, recordType, ActionAllow, GrantRead)
}

// Revoke removes readerID's read access to recordType.
func (e *Engine) Revoke(ctx context.Context, recordType, readerID string) error {
	if err := e.policies.PutPolicy(ctx, e.selfID, e.selfID, readerID, recordType, ActionDeny, GrantRead); err != nil {
		return err
	}
	return e.rc.AccessKeys().DeleteAccessKey(ctx, e.selfID, e.selfID, readerID, recordType)
}

// AddAuthorizer grants authorizerID the ability to share recordType on
// this client's behalf. Idempotent: a second call with an existing
// authorizer policy is a no-op.
func (e *Engine) AddAuthorizer(ctx context.Context, recordType, authorizerID string) error {
	exists, err := e.policies.HasAuthorizerPolicy(ctx, recordType, authorizerID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	ak, err := e.rc.EnsureAccessKey(ctx, recordType)
	if err != nil {
		return err
	}
	if err := e.rc.AccessKeys().PutAccessKey(ctx, e.selfID, e.selfID, authorizerID, recordType, ak); err != nil {
		return err
	}
	return e.policies.PutPolicy(ctx, e.selfID, e.selfID, authorizerID, recordType, ActionAllow, GrantAuthorizer)
}

// RemoveAuthorizer revokes authorizerID's delegated sharing ability.
func (e *Engine) RemoveAuthorizer(ctx context.Context, recordType, authorizerID string) error {
	if err := e.policies.PutPolicy(ctx, e.selfID, e.selfID, authorizerID, recordType, ActionDeny, GrantAuthorizer); err != nil {
		return err
	}
	return e.rc.AccessKeys().DeleteAccessKey(ctx, e.selfID, e.selfID, authorizerID, recordType)
}

// ShareOnBehalfOf acts as an authorizer for writerID: it requires this
// client to already hold writerID's AK (placed there by a prior
// AddAuthorizer), and fails with a LookupError if that authorization
// has since been revoked.
func (e *Engine) ShareOnBehalfOf(ctx context.Context, writerID, readerID, recordType string) error {
	ak, err := e.rc.AccessKeys().GetAccessKey(ctx, writerID, writerID, e.selfID, recordType)
	if err != nil {
		return err
	}
	if ak == nil {
		return &apierr.LookupError{What: fmt.Sprintf("authorizer access to %s/%s has been revoked", writerID, recordType)}
	}
	if err := e.rc.AccessKeys().PutAccessKey(ctx, writerID, writerID, readerID, recordType, ak); err != nil {
		return err
	}
	return e.policies.PutPolicy(ctx, writerID, writerID, readerID, recordType, ActionAllow, GrantRead)
}

// RevokeOnBehalfOf acts as an authorizer to revoke readerID's access
// to writerID's recordType records.
func (e *Engine) RevokeOnBehalfOf(ctx context.Context, writerID, readerID, recordType string) error {
	if err := e.policies.PutPolicy(ctx, writerID, writerID, readerID, recordType, ActionDeny, GrantRead); err != nil {
		return err
	}
	return e.rc.AccessKeys().DeleteAccessKey(ctx, writerID, writerID, readerID, recordType)
}
