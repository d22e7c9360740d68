package userop

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp"
)

var (
	testEntryPoint = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	testSender     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testFactory    = common.HexToAddress("0xd703aaE79538628d27099B8c4f621bE4CCd142d5")
	testPaymaster  = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func testOperation() *UserOperation {
	return &UserOperation{
		Sender:               testSender,
		Nonce:                big.NewInt(3),
		CallData:             hexutil.MustDecode("0xe9ae5c53"),
		CallGasLimit:         big.NewInt(100000),
		VerificationGasLimit: big.NewInt(200000),
		PreVerificationGas:   big.NewInt(50000),
		MaxFeePerGas:         big.NewInt(2000000000),
		MaxPriorityFeePerGas: big.NewInt(1000000),
		Signature:            []byte{0x01, 0x02},
	}
}

func TestPackedFields(t *testing.T) {
	c := qt.New(t)
	op := testOperation()

	limits := op.AccountGasLimits()
	c.Assert(new(big.Int).SetBytes(limits[:16]).Int64(), qt.Equals, int64(200000))
	c.Assert(new(big.Int).SetBytes(limits[16:]).Int64(), qt.Equals, int64(100000))

	fees := op.GasFees()
	c.Assert(new(big.Int).SetBytes(fees[:16]).Int64(), qt.Equals, int64(1000000))
	c.Assert(new(big.Int).SetBytes(fees[16:]).Int64(), qt.Equals, int64(2000000000))

	c.Assert(op.InitCode(), qt.HasLen, 0)
	c.Assert(op.PaymasterAndData(), qt.HasLen, 0)
	c.Assert(op.HasFactory(), qt.IsFalse)

	op.Factory = &testFactory
	c.Assert(op.HasFactory(), qt.IsFalse)
	op.FactoryData = []byte{0xaa, 0xbb}
	c.Assert(op.HasFactory(), qt.IsTrue)
	c.Assert(op.InitCode(), qt.DeepEquals, append(testFactory.Bytes(), 0xaa, 0xbb))

	op.Paymaster = &testPaymaster
	op.PaymasterVerificationGasLimit = big.NewInt(200000)
	op.PaymasterPostOpGasLimit = big.NewInt(100000)
	op.PaymasterData = []byte{0xcc}
	pmd := op.PaymasterAndData()
	c.Assert(pmd, qt.HasLen, 53)
	c.Assert(pmd[:20], qt.DeepEquals, testPaymaster.Bytes())
	c.Assert(new(big.Int).SetBytes(pmd[20:36]).Int64(), qt.Equals, int64(200000))
	c.Assert(new(big.Int).SetBytes(pmd[36:52]).Int64(), qt.Equals, int64(100000))
	c.Assert(pmd[52], qt.Equals, byte(0xcc))
}

func TestHash(t *testing.T) {
	c := qt.New(t)
	op := testOperation()

	packed, err := op.Pack()
	c.Assert(err, qt.IsNil)
	c.Assert(packed, qt.HasLen, 8*32)

	h1, err := op.Hash(testEntryPoint, big.NewInt(84532))
	c.Assert(err, qt.IsNil)

	// the signature is not covered
	op.Signature = []byte{0xff}
	h2, err := op.Hash(testEntryPoint, big.NewInt(84532))
	c.Assert(err, qt.IsNil)
	c.Assert(h2, qt.Equals, h1)

	h3, err := op.Hash(testEntryPoint, big.NewInt(1))
	c.Assert(err, qt.IsNil)
	c.Assert(h3, qt.Not(qt.Equals), h1)

	op.Nonce = big.NewInt(4)
	h4, err := op.Hash(testEntryPoint, big.NewInt(84532))
	c.Assert(err, qt.IsNil)
	c.Assert(h4, qt.Not(qt.Equals), h1)

	op.Nonce = big.NewInt(3)
	op.Paymaster = &testPaymaster
	h5, err := op.Hash(testEntryPoint, big.NewInt(84532))
	c.Assert(err, qt.IsNil)
	c.Assert(h5, qt.Not(qt.Equals), h1)
}

// Values computed with EntryPoint v0.7 getUserOpHash encoding on chain 84532.
func TestHashKnownValues(t *testing.T) {
	c := qt.New(t)
	chainID := big.NewInt(84532)
	op := testOperation()

	h, err := op.Hash(testEntryPoint, chainID)
	c.Assert(err, qt.IsNil)
	c.Assert(h.Hex(), qt.Equals, "0x84ed8e03a50749443d663fa746d1fe9284968a0d422688e614f8aaf784a29a24")

	op.Factory = &testFactory
	op.FactoryData = []byte{0xaa, 0xbb}
	op.Paymaster = &testPaymaster
	op.PaymasterVerificationGasLimit = big.NewInt(200000)
	op.PaymasterPostOpGasLimit = big.NewInt(100000)
	op.PaymasterData = []byte{0xcc}
	h, err = op.Hash(testEntryPoint, chainID)
	c.Assert(err, qt.IsNil)
	c.Assert(h.Hex(), qt.Equals, "0xd980bffe674a024007febcde24564c07136b42e36c0b31fbc8d647c6b63f4e5b")
}

func TestJSON(t *testing.T) {
	c := qt.New(t)
	op := testOperation()

	data, err := json.Marshal(op)
	c.Assert(err, qt.IsNil)
	c.Assert(strings.Contains(string(data), `"nonce":"0x3"`), qt.IsTrue)
	c.Assert(strings.Contains(string(data), `"callGasLimit":"0x186a0"`), qt.IsTrue)
	c.Assert(strings.Contains(string(data), `"factory"`), qt.IsFalse)
	c.Assert(strings.Contains(string(data), `"paymaster"`), qt.IsFalse)

	op.Factory = &testFactory
	op.FactoryData = []byte{0xaa}
	op.Paymaster = &testPaymaster
	op.PaymasterVerificationGasLimit = big.NewInt(1)
	op.PaymasterPostOpGasLimit = big.NewInt(2)
	data, err = json.Marshal(op)
	c.Assert(err, qt.IsNil)
	c.Assert(strings.Contains(string(data), `"factoryData":"0xaa"`), qt.IsTrue)
	c.Assert(strings.Contains(string(data), `"paymasterData":"0x"`), qt.IsTrue)

	var decoded UserOperation
	c.Assert(json.Unmarshal(data, &decoded), qt.IsNil)
	c.Assert(decoded.PaymasterData, qt.HasLen, 0)
	decoded.PaymasterData = nil
	c.Assert(&decoded, qt.CmpEquals(cmp.Comparer(func(a, b *big.Int) bool {
		return a.Cmp(b) == 0
	})), op)
}

func TestJSONPaymasterData(t *testing.T) {
	c := qt.New(t)
	op := testOperation()
	op.Paymaster = &testPaymaster
	op.PaymasterData = []byte{}

	data, err := json.Marshal(op)
	c.Assert(err, qt.IsNil)
	var fields map[string]any
	c.Assert(json.Unmarshal(data, &fields), qt.IsNil)
	c.Assert(fields["paymasterData"], qt.Equals, "0x")
	c.Assert(fields["paymasterVerificationGasLimit"], qt.Equals, "0x0")

	op.PaymasterData = []byte{0x01, 0x02}
	data, err = json.Marshal(op)
	c.Assert(err, qt.IsNil)
	var decoded UserOperation
	c.Assert(json.Unmarshal(data, &decoded), qt.IsNil)
	c.Assert(decoded.PaymasterData, qt.DeepEquals, []byte{0x01, 0x02})

	op.Paymaster = nil
	data, err = json.Marshal(op)
	c.Assert(err, qt.IsNil)
	c.Assert(strings.Contains(string(data), `"paymasterData"`), qt.IsFalse)
}

func TestMergeAndCopy(t *testing.T) {
	c := qt.New(t)
	op := testOperation()
	cp := op.Copy()

	op.Merge(&GasEstimate{
		CallGasLimit:            (*hexutil.Big)(big.NewInt(7)),
		PaymasterPostOpGasLimit: (*hexutil.Big)(big.NewInt(9)),
	})
	c.Assert(op.CallGasLimit.Int64(), qt.Equals, int64(7))
	c.Assert(op.PaymasterPostOpGasLimit.Int64(), qt.Equals, int64(9))
	c.Assert(op.VerificationGasLimit.Int64(), qt.Equals, int64(200000))
	op.Merge(nil)

	// the copy is not affected
	c.Assert(cp.CallGasLimit.Int64(), qt.Equals, int64(100000))
	c.Assert(cp.PaymasterPostOpGasLimit, qt.IsNil)
	cp.Signature[0] = 0xff
	c.Assert(op.Signature[0], qt.Equals, byte(0x01))
}
