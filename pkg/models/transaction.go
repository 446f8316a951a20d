package models

// TxIn represents a transaction input.
type TxIn struct {
	Txid      string `json:"txid"`
	Vout      uint32 `json:"vout"`
	Value     int64  `json:"value"` // in Satoshis
	Address   string `json:"address"`
	ScriptSig string `json:"scriptSig"`
	Sequence  uint32 `json:"sequence"` // nSequence: 0xFFFFFFFE = RBF (BIP125), 0xFFFFFFFF = final
}

// TxOut represents a transaction output.
type TxOut struct {
	Value        int64  `json:"value"` // in Satoshis
	Address      string `json:"address"`
	ScriptPubKey string `json:"scriptPubKey"`
}

// Outpoint uniquely identifies one transaction output.
type Outpoint struct {
	Hash  string `json:"hash"`
	Index uint32 `json:"index"`
}

// Transaction represents a parsed transaction, shared and treated as
// immutable once referenced from a mempool entry.
type Transaction struct {
	Txid            string  `json:"txid"`
	Inputs          []TxIn  `json:"inputs"`
	Outputs         []TxOut `json:"outputs"`
	Fee             int64   `json:"fee"` // Inputs - Outputs, in Satoshis
	Weight          int     `json:"weight"`
	Vsize           int     `json:"vsize"` // BIP141 virtual size
	LockTime        uint32  `json:"locktime"`
	Version         int32   `json:"version"`
	SpendsCoinbase  bool    `json:"spendsCoinbase"`
	SigOpCost       int     `json:"sigOpCost"`
}

// Prevout returns the outpoint consumed by input i.
func (t *Transaction) Prevout(i int) Outpoint {
	return Outpoint{Hash: t.Inputs[i].Txid, Index: t.Inputs[i].Vout}
}
