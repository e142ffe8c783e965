// cborgen regenerates the cbor_gen.go files. Run it from this directory.
package main

import (
	"log"
	"path/filepath"

	gen "github.com/whyrusleeping/cbor-gen"

	"github.com/foxxcn/RefFVM/pkg/builtin"
	"github.com/foxxcn/RefFVM/pkg/builtin/account"
	"github.com/foxxcn/RefFVM/pkg/builtin/initactor"
	"github.com/foxxcn/RefFVM/pkg/builtin/market"
	"github.com/foxxcn/RefFVM/pkg/builtin/miner"
	"github.com/foxxcn/RefFVM/pkg/types"
)

type genTarget struct {
	dir   string
	pkg   string
	types []interface{}
}

func main() {
	targets := []genTarget{
		{
			dir: "../../pkg/types/",
			types: []interface{}{
				types.Actor{},
				types.Message{},
				types.MessageReceipt{},
			},
		},
		{
			dir: "../../pkg/builtin/",
			types: []interface{}{
				builtin.MinerAddrs{},
			},
		},
		{
			dir: "../../pkg/builtin/account/",
			types: []interface{}{
				account.State{},
			},
		},
		{
			dir: "../../pkg/builtin/initactor/",
			types: []interface{}{
				initactor.State{},
				initactor.ConstructorParams{},
			},
		},
		{
			dir: "../../pkg/builtin/miner/",
			types: []interface{}{
				miner.State{},
				miner.ChangeWorkerAddressParams{},
			},
		},
		{
			dir: "../../pkg/builtin/market/",
			types: []interface{}{
				market.State{},
				market.WithdrawBalanceParams{},
			},
		},
	}

	for _, target := range targets {
		pkg := target.pkg
		if pkg == "" {
			pkg = filepath.Base(target.dir)
		}

		if err := gen.WriteTupleEncodersToFile(filepath.Join(target.dir, "cbor_gen.go"), pkg, target.types...); err != nil {
			log.Fatalf("gen for %s: %s", target.dir, err)
		}
	}
}
