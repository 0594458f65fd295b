package store

// Prefix bytes delimit the top-level key-space every persisted record lives
// under. Both pkg/ledger and pkg/native
// build keys from these constants so every writer/reader agrees on the same
// namespace without the two packages needing to import each other.
const (
	PrefixBlock        byte = 0x01 // Block(hash) -> full block
	PrefixTransaction   byte = 0x02 // Transaction(hash) -> (block_index, tx)
	PrefixHeaderIndex    byte = 0x03 // HeaderIndex(height) -> block hash
	PrefixCurrentBlock    byte = 0x04 // CurrentBlock -> (hash, height)
	PrefixCurrentHeader    byte = 0x05 // CurrentHeader -> (hash, height)
	PrefixContract          byte = 0x06 // Contract(id) -> (hash, nef, manifest, update_counter)
	PrefixContractHash       byte = 0x07 // ContractHash(hash) -> id
	PrefixStorage             byte = 0x08 // Storage(id, key) -> StorageItem
	PrefixAppLog               byte = 0x09 // AppLog(tx_hash) -> notifications + logs
	PrefixStateRoot              byte = 0x0A // StateRoot(height) -> MPT root
	PrefixConsensus                byte = 0x0B // Consensus -> consensus context blob
)

// StorageKey builds the Storage(id, key) composite key: every
// native (and deployed) contract's storage lives under its own contract id
// namespace, keyed by the prefix byte plus the little-endian id plus the
// contract-chosen subkey bytes.
func StorageKey(contractID int32, subkey []byte) []byte {
	out := make([]byte, 0, 6+len(subkey))
	out = append(out, PrefixStorage)
	out = append(out, byte(contractID), byte(contractID>>8), byte(contractID>>16), byte(contractID>>24))
	out = append(out, subkey...)
	return out
}

// StoragePrefix returns the Seek()-able prefix for every key belonging to
// contractID, used by range scans (e.g. NeoToken's candidate list, iterator
// support).
func StoragePrefix(contractID int32) []byte {
	return StorageKey(contractID, nil)
}
