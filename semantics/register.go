package semantics

import (
	"fmt"

	"veristate/fingerprint"
)

// Register is a single-value read/write reference object.
type Register byte

func (r Register) Hash(s *fingerprint.Stream) { s.WriteUint64(uint64(r)) }

// RegisterOp is a read or a write.
type RegisterOp struct {
	Write bool
	Value byte // meaningful for writes
}

// ReadOp constructs a read.
func ReadOp() RegisterOp { return RegisterOp{} }

// WriteOp constructs a write.
func WriteOp(v byte) RegisterOp { return RegisterOp{Write: true, Value: v} }

func (op RegisterOp) Hash(s *fingerprint.Stream) {
	s.WriteBool(op.Write)
	s.WriteUint64(uint64(op.Value))
}

func (op RegisterOp) String() string {
	if op.Write {
		return fmt.Sprintf("Write(%c)", op.Value)
	}
	return "Read"
}

// RegisterRet is a write acknowledgment or a read result.
type RegisterRet struct {
	WriteOk bool
	Value   byte // meaningful for reads
}

func (ret RegisterRet) Hash(s *fingerprint.Stream) {
	s.WriteBool(ret.WriteOk)
	s.WriteUint64(uint64(ret.Value))
}

func (ret RegisterRet) String() string {
	if ret.WriteOk {
		return "WriteOk"
	}
	return fmt.Sprintf("ReadOk(%c)", ret.Value)
}

// Invoke applies an operation sequentially.
func (r Register) Invoke(op RegisterOp) (Register, RegisterRet) {
	if op.Write {
		return Register(op.Value), RegisterRet{WriteOk: true}
	}
	return r, RegisterRet{Value: byte(r)}
}

// RegisterHistory is the history type register-based models carry.
type RegisterHistory = LinearizabilityTester[Register, RegisterOp, RegisterRet]

// NewRegisterHistory starts an empty register history.
func NewRegisterHistory(initial byte) RegisterHistory {
	return NewLinearizabilityTester[Register, RegisterOp, RegisterRet](Register(initial))
}
