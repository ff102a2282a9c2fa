package registry

import (
	"context"
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrNotFound is returned by Fetch when no account exists at the address.
var ErrNotFound = errors.New("extra account meta list not found")

// AccountInfoGetter is the subset of *rpc.Client Fetch needs.
type AccountInfoGetter interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
}

// Fetch reads and unpacks the list stored at address on a cluster. When owner
// is non-zero the account must be owned by it.
func Fetch(ctx context.Context, client AccountInfoGetter, address, owner solana.PublicKey) ([]ExtraAccountMeta, error) {
	info, err := client.GetAccountInfo(ctx, address)
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", address, err)
	}
	if info == nil || info.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	if !owner.IsZero() && !info.Value.Owner.Equals(owner) {
		return nil, fmt.Errorf("account %s is owned by %s, expected %s", address, info.Value.Owner, owner)
	}
	return Unpack(info.Value.Data.GetBinary())
}
