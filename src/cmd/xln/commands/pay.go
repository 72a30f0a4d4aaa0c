package commands

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/mosaicnetworks/xln/src/ledger"
	"github.com/mosaicnetworks/xln/src/node"
	"github.com/mosaicnetworks/xln/src/xln"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	payRoute    []string
	payAmount   string
	payMin      string
	payChainID  uint32
	payTokenID  uint32
	payTimelock int64
	payDirect   bool
	payWait     time.Duration
)

// NewPayCmd returns the command that starts a node, sends one payment and
// exits once the payment is resolved.
func NewPayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pay",
		Short:   "Send a payment",
		PreRunE: loadConfig,
		RunE:    pay,
	}
	AddConfigFlags(cmd)
	AddPayFlags(cmd)
	return cmd
}

//AddPayFlags adds flags to the pay command
func AddPayFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&payRoute, "route", nil, "Comma-separated addresses of the hops; the last one is the payee")
	cmd.Flags().StringVar(&payAmount, "amount", "", "Amount to send")
	cmd.Flags().StringVar(&payMin, "min", "", "Least amount the payee accepts")
	cmd.Flags().Uint32Var(&payChainID, "chain", 1, "Chain id of the subchannel")
	cmd.Flags().Uint32Var(&payTokenID, "token", 1, "Token id")
	cmd.Flags().Int64Var(&payTimelock, "timelock", 0, "Timelock of the payment, defaults to --default-timelock")
	cmd.Flags().BoolVar(&payDirect, "direct", false, "Pay the only hop immediately instead of through a hashlock")
	cmd.Flags().DurationVar(&payWait, "wait", time.Minute, "How long to wait for the payment to resolve")
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return amount, nil
}

func pay(cmd *cobra.Command, args []string) error {
	if len(payRoute) == 0 {
		return fmt.Errorf("--route is required")
	}
	amount, err := parseAmount(payAmount)
	if err != nil {
		return err
	}
	if amount == nil {
		return fmt.Errorf("--amount is required")
	}
	minReceived, err := parseAmount(payMin)
	if err != nil {
		return err
	}

	route := make([]ledger.Address, len(payRoute))
	for i, r := range payRoute {
		route[i] = ledger.NewAddress(r)
	}

	engine := xln.NewXLN(_config)
	if err := engine.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}
	defer engine.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), payWait)
	defer cancel()

	engine.Node.Listen(engine.Listener)
	profile, ok := engine.Node.GetProfile(route[0])
	if !ok {
		return fmt.Errorf("first hop %s is not in peers.json", route[0])
	}
	if err := engine.Node.Connect(ctx, profile); err != nil {
		return err
	}

	logger := _config.Logger().WithFields(logrus.Fields{
		"route":  payRoute,
		"amount": amount.String(),
	})

	if payDirect {
		if len(route) != 1 {
			return fmt.Errorf("direct payments take a single hop")
		}
		ch, err := engine.Node.Channel(route[0])
		if err != nil {
			return err
		}
		before := ch.BlockID()
		if err := engine.Node.DirectPay(route[0], payChainID, payTokenID, amount); err != nil {
			return err
		}
		for ch.BlockID() == before {
			select {
			case <-ctx.Done():
				return fmt.Errorf("direct payment not committed: %w", ctx.Err())
			case <-time.After(50 * time.Millisecond):
			}
		}
		logger.WithField("block_id", ch.BlockID()).Info("Direct payment committed")
		return nil
	}

	promise, err := engine.Node.Pay(&node.PaymentRequest{
		Route:       route,
		ChainID:     payChainID,
		TokenID:     payTokenID,
		Amount:      amount,
		MinReceived: minReceived,
		Timelock:    payTimelock,
	})
	if err != nil {
		return err
	}

	secret, err := promise.Wait(ctx)
	if err != nil {
		logger.WithError(err).Error("Payment failed")
		return err
	}

	logger.WithField("hashlock", promise.Hashlock).Info("Payment settled")
	fmt.Println(secret)

	return nil
}
