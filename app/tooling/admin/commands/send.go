package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/difficulty"
	"github.com/ardanlabs/powledger/foundation/blockchain/pow"
	"github.com/ardanlabs/powledger/foundation/blockchain/schema"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	url     string
	sendKey string
	to      string
	amount  int64
	balance int64
	kind    string
	note    string
)

var kinds = map[string]schema.CoinKind{
	"mint":        schema.CoinMint,
	"from":        schema.CoinFrom,
	"to":          schema.CoinTo,
	"attestation": schema.CoinAttestation,
}

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Mine a coin message and submit it to a node",
	RunE:  sendRun,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
	sendCmd.Flags().StringVarP(&sendKey, "key", "k", "zblock/node.ecdsa", "Path to the private key of the author.")
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Address of the counterparty.")
	sendCmd.Flags().Int64VarP(&amount, "amount", "v", 0, "Amount moved.")
	sendCmd.Flags().Int64VarP(&balance, "balance", "b", 0, "Balance of the author after the message.")
	sendCmd.Flags().StringVar(&kind, "kind", "mint", "Coin kind: mint, from, to or attestation.")
	sendCmd.Flags().StringVarP(&note, "note", "n", "", "Note carried by the message.")
}

func sendRun(cmd *cobra.Command, args []string) error {
	privateKey, err := crypto.LoadECDSA(sendKey)
	if err != nil {
		return err
	}
	author := crypto.PubkeyToAddress(privateKey.PublicKey)

	k, exists := kinds[kind]
	if !exists {
		return fmt.Errorf("unknown coin kind %q", kind)
	}

	coin := schema.Coin{
		Author:      author,
		Amount:      amount,
		NextBalance: balance,
		Kind:        k,
	}
	switch k {
	case schema.CoinFrom:
		coin.From = author
		coin.To = common.HexToAddress(to)
	case schema.CoinTo:
		coin.From = common.HexToAddress(to)
		coin.To = author
	}

	h := schema.CoinHandle()
	data, err := h.Encode(&coin)
	if err != nil {
		return err
	}

	threshold, err := transactionThreshold()
	if err != nil {
		return err
	}

	msg := codec.Message{From: author, To: h.Short(), Data: data, Note: []byte(note)}
	res, err := pow.MineRecord[codec.Message](cmd.Context(), pow.Miner{Workers: 1, Label: "message", EvHandler: pow.EventHandler(ev)}, &msg, threshold)
	if err != nil {
		return fmt.Errorf("mine message: %w", err)
	}

	body, err := json.Marshal(struct {
		Data string `json:"data"`
	}{
		Data: hexutil.Encode(res.Encoded),
	})
	if err != nil {
		return err
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("submit: status %d: %s", resp.StatusCode, bytes.TrimSpace(out))
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(bytes.TrimSpace(out)))
	return nil
}

// transactionThreshold asks the node for the current message threshold.
func transactionThreshold() (*big.Int, error) {
	resp, err := http.Get(fmt.Sprintf("%s/v1/difficulty", url))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var limits struct {
		Thresholds map[string]string `json:"thresholds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&limits); err != nil {
		return nil, fmt.Errorf("decode difficulty: %w", err)
	}

	// Thresholds above the MAIN limit can exceed 256 bits.
	s := limits.Thresholds[difficulty.Transaction.String()]
	threshold, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid threshold %q", s)
	}

	return threshold, nil
}
