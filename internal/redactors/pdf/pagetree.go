// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pdf

import (
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// RepairPageTree counts the leaves of the page tree and rewrites every
// /Count that disagrees, since page lookups skip subtrees by /Count. It sets
// ctx.PageCount and returns the count the root declared.
func RepairPageTree(ctx *model.Context) (declared int, err error) {
	root, err := ctx.Pages()
	if err != nil {
		return 0, err
	}
	if root == nil {
		return 0, errors.New("catalog has no page tree")
	}
	rootDict, err := ctx.DereferenceDict(*root)
	if err != nil {
		return 0, err
	}
	if rootDict == nil {
		return 0, errors.New("page tree root is missing")
	}
	if c := rootDict.IntEntry("Count"); c != nil {
		declared = *c
	}

	visited := make(map[int]bool)
	var walk func(ref types.IndirectRef, depth int) (int, error)
	walk = func(ref types.IndirectRef, depth int) (int, error) {
		nr := ref.ObjectNumber.Value()
		if visited[nr] {
			return 0, fmt.Errorf("page tree revisits object %d", nr)
		}
		visited[nr] = true

		d, err := ctx.DereferenceDict(ref)
		if err != nil {
			return 0, err
		}
		if d == nil {
			return 0, nil
		}
		kidsObj, found := d.Find("Kids")
		if !found {
			if depth == 0 {
				return 0, nil
			}
			return 1, nil
		}
		kids, err := ctx.DereferenceArray(kidsObj)
		if err != nil {
			return 0, err
		}

		n := 0
		for _, o := range kids {
			kid, ok := o.(types.IndirectRef)
			if !ok {
				continue
			}
			c, err := walk(kid, depth+1)
			if err != nil {
				return 0, err
			}
			n += c
		}
		if c := d.IntEntry("Count"); c == nil || *c != n {
			d.Update("Count", types.Integer(n))
		}
		return n, nil
	}

	found, err := walk(*root, 0)
	if err != nil {
		return declared, err
	}
	ctx.PageCount = found
	return declared, nil
}
