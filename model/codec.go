package model

import (
	"bytes"
	"io"
)

// Serialize/Unserialize give Body a concrete, deterministic wire form.
// spec.md §6 delegates wire/on-disk formats to an external serializer
// collaborator and only requires that serialization be "deterministic
// and reversible" -- this is this module's own stand-in codec, used by
// NodeDB body storage and macroblock export/import, grounded on the
// same varint-counted-array shape as RollbackData (model/rollback.go)
// and model/undo/undo.go.
func (b *Body) Serialize(w io.Writer) error {
	if err := WriteVarInt(w, uint64(len(b.Inputs))); err != nil {
		return err
	}
	for _, in := range b.Inputs {
		if err := writeInput(w, in); err != nil {
			return err
		}
	}
	if err := WriteVarInt(w, uint64(len(b.Outputs))); err != nil {
		return err
	}
	for _, out := range b.Outputs {
		if err := writeOutput(w, out); err != nil {
			return err
		}
	}
	if err := WriteVarInt(w, uint64(len(b.KernelsInput))); err != nil {
		return err
	}
	for _, k := range b.KernelsInput {
		if err := writeKernel(w, k); err != nil {
			return err
		}
	}
	if err := WriteVarInt(w, uint64(len(b.KernelsOutput))); err != nil {
		return err
	}
	for _, k := range b.KernelsOutput {
		if err := writeKernel(w, k); err != nil {
			return err
		}
	}
	if _, err := w.Write(b.Offset[:]); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(b.Subsidy)); err != nil {
		return err
	}
	closing := byte(0)
	if b.SubsidyClosing {
		closing = 1
	}
	_, err := w.Write([]byte{closing})
	return err
}

func (b *Body) Unserialize(r io.Reader) error {
	n, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	b.Inputs = make([]*Input, n)
	for i := range b.Inputs {
		in, err := readInput(r)
		if err != nil {
			return err
		}
		b.Inputs[i] = in
	}

	n, err = ReadVarInt(r)
	if err != nil {
		return err
	}
	b.Outputs = make([]*Output, n)
	for i := range b.Outputs {
		out, err := readOutput(r)
		if err != nil {
			return err
		}
		b.Outputs[i] = out
	}

	n, err = ReadVarInt(r)
	if err != nil {
		return err
	}
	b.KernelsInput = make([]*TxKernel, n)
	for i := range b.KernelsInput {
		k, err := readKernel(r)
		if err != nil {
			return err
		}
		b.KernelsInput[i] = k
	}

	n, err = ReadVarInt(r)
	if err != nil {
		return err
	}
	b.KernelsOutput = make([]*TxKernel, n)
	for i := range b.KernelsOutput {
		k, err := readKernel(r)
		if err != nil {
			return err
		}
		b.KernelsOutput[i] = k
	}

	if _, err := io.ReadFull(r, b.Offset[:]); err != nil {
		return err
	}
	subsidy, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	b.Subsidy = Amount(subsidy)

	var closing [1]byte
	if _, err := io.ReadFull(r, closing[:]); err != nil {
		return err
	}
	b.SubsidyClosing = closing[0] != 0
	return nil
}

// Bytes/FromBytes are the []byte convenience wrappers NodeDB.SetStateBlock
// and macroblock handling use.
func (b *Body) Bytes() []byte {
	buf := &bytes.Buffer{}
	_ = b.Serialize(buf)
	return buf.Bytes()
}

func BodyFromBytes(data []byte) (*Body, error) {
	b := &Body{}
	if err := b.Unserialize(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return b, nil
}

func writeInput(w io.Writer, in *Input) error {
	if _, err := w.Write(in.Commitment[:]); err != nil {
		return err
	}
	return WriteVarInt(w, uint64(in.Maturity))
}

func readInput(r io.Reader) (*Input, error) {
	in := &Input{}
	if _, err := io.ReadFull(r, in.Commitment[:]); err != nil {
		return nil, err
	}
	m, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	in.Maturity = Height(m)
	return in, nil
}

func writeOutput(w io.Writer, o *Output) error {
	if _, err := w.Write(o.Commitment[:]); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(o.ConfidentialProof))); err != nil {
		return err
	}
	if _, err := w.Write(o.ConfidentialProof); err != nil {
		return err
	}
	flags := byte(0)
	if o.Coinbase {
		flags |= 1
	}
	if o.ExplicitMaturity != nil {
		flags |= 2
	}
	if _, err := w.Write([]byte{flags}); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(o.Incubation)); err != nil {
		return err
	}
	if o.ExplicitMaturity != nil {
		return WriteVarInt(w, uint64(*o.ExplicitMaturity))
	}
	return nil
}

func readOutput(r io.Reader) (*Output, error) {
	o := &Output{}
	if _, err := io.ReadFull(r, o.Commitment[:]); err != nil {
		return nil, err
	}
	n, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	o.ConfidentialProof = make([]byte, n)
	if _, err := io.ReadFull(r, o.ConfidentialProof); err != nil {
		return nil, err
	}
	var flags [1]byte
	if _, err := io.ReadFull(r, flags[:]); err != nil {
		return nil, err
	}
	o.Coinbase = flags[0]&1 != 0
	hasExplicit := flags[0]&2 != 0
	inc, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	o.Incubation = Height(inc)
	if hasExplicit {
		em, err := ReadVarInt(r)
		if err != nil {
			return nil, err
		}
		h := Height(em)
		o.ExplicitMaturity = &h
	}
	return o, nil
}

func writeKernel(w io.Writer, k *TxKernel) error {
	if _, err := w.Write(k.ID[:]); err != nil {
		return err
	}
	if _, err := w.Write(k.Excess[:]); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(k.Signature))); err != nil {
		return err
	}
	if _, err := w.Write(k.Signature); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(k.MinHeight)); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(k.MaxHeight)); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(k.Fee)); err != nil {
		return err
	}
	return WriteVarInt(w, uint64(k.AssetID))
}

func readKernel(r io.Reader) (*TxKernel, error) {
	k := &TxKernel{}
	if _, err := io.ReadFull(r, k.ID[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, k.Excess[:]); err != nil {
		return nil, err
	}
	n, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	k.Signature = make([]byte, n)
	if _, err := io.ReadFull(r, k.Signature); err != nil {
		return nil, err
	}
	minH, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	k.MinHeight = Height(minH)
	maxH, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	k.MaxHeight = Height(maxH)
	fee, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	k.Fee = Amount(fee)
	assetID, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	k.AssetID = uint32(assetID)
	return k, nil
}
