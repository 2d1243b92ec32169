// Copyright 2024 The idmap2 Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package idmap

// Visitor is implemented by idmap traversal strategies (binary
// serialization, raw dump, pretty dump). Accept calls the handler for a
// node before descending into its children, in stored order; for the
// serializer that order is the wire format.
type Visitor interface {
	VisitIdmap(*Idmap)
	VisitHeader(*Header)
	VisitData(*Data)
	VisitDataHeader(*DataHeader)
	VisitResourceType(*ResourceType)
}

// Accept traverses the artifact: the idmap node itself, its header, then
// each data block in order.
func (m *Idmap) Accept(v Visitor) {
	v.VisitIdmap(m)
	m.header.Accept(v)
	for _, d := range m.data {
		d.Accept(v)
	}
}

func (h *Header) Accept(v Visitor) {
	v.VisitHeader(h)
}

// Accept traverses the data block: the block itself, its header, then
// each resource type group in order.
func (d *Data) Accept(v Visitor) {
	v.VisitData(d)
	d.header.Accept(v)
	for _, t := range d.types {
		t.Accept(v)
	}
}

func (h *DataHeader) Accept(v Visitor) {
	v.VisitDataHeader(h)
}

func (t *ResourceType) Accept(v Visitor) {
	v.VisitResourceType(t)
}
