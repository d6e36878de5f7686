package storage

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/orderswap/pkg/app/core/transfer"
)

// Pebble key schema:
//
//   ost:<digest>                        → order status (1 byte)
//   stl:<unix nanos, 20 digits>:<id>    → settlement JSON, lexicographic = chronological
//   h20:<contract>:<owner>              → ERC20 balance (decimal)
//   h721:<contract>:<id>                → ERC721 owner (hex)
//   h1155:<contract>:<id>:<owner>       → ERC1155 balance (decimal)

const (
	prefixStatus     = "ost:"
	prefixSettlement = "stl:"
	prefixERC20      = "h20:"
	prefixERC721     = "h721:"
	prefixERC1155    = "h1155:"
)

func statusKey(digest common.Hash) []byte {
	return []byte(prefixStatus + digest.Hex())
}

// settlementKey zero-pads the timestamp to 20 digits for lexicographic sorting
func settlementKey(unixNano int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixSettlement, unixNano, id))
}

func erc20Key(k transfer.FungibleKey) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixERC20, k.Contract.Hex(), k.Owner.Hex()))
}

func erc721Key(k transfer.TokenKey) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixERC721, k.Contract.Hex(), k.ID))
}

func erc1155Key(k transfer.MultiKey) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixERC1155, k.Contract.Hex(), k.ID, k.Owner.Hex()))
}

func parseERC20Key(key []byte) (transfer.FungibleKey, error) {
	parts := strings.Split(strings.TrimPrefix(string(key), prefixERC20), ":")
	if len(parts) != 2 {
		return transfer.FungibleKey{}, fmt.Errorf("malformed erc20 key %q", key)
	}
	return transfer.FungibleKey{Contract: common.HexToAddress(parts[0]), Owner: common.HexToAddress(parts[1])}, nil
}

func parseERC721Key(key []byte) (transfer.TokenKey, error) {
	parts := strings.Split(strings.TrimPrefix(string(key), prefixERC721), ":")
	if len(parts) != 2 {
		return transfer.TokenKey{}, fmt.Errorf("malformed erc721 key %q", key)
	}
	return transfer.TokenKey{Contract: common.HexToAddress(parts[0]), ID: parts[1]}, nil
}

func parseERC1155Key(key []byte) (transfer.MultiKey, error) {
	parts := strings.Split(strings.TrimPrefix(string(key), prefixERC1155), ":")
	if len(parts) != 3 {
		return transfer.MultiKey{}, fmt.Errorf("malformed erc1155 key %q", key)
	}
	return transfer.MultiKey{Contract: common.HexToAddress(parts[0]), ID: parts[1], Owner: common.HexToAddress(parts[2])}, nil
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
