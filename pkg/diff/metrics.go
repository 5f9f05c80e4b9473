package diff

import (
	"strings"

	"github.com/chinmayajena/sundaygraph/pkg/odl"
)

func (d *differ) metrics(oldIR, newIR *odl.IR) {
	oldMetrics := make(map[string]*odl.Metric, len(oldIR.Metrics))
	for i := range oldIR.Metrics {
		oldMetrics[oldIR.Metrics[i].Name] = &oldIR.Metrics[i]
	}
	newMetrics := make(map[string]*odl.Metric, len(newIR.Metrics))
	for i := range newIR.Metrics {
		newMetrics[newIR.Metrics[i].Name] = &newIR.Metrics[i]
	}

	oldNames := make(map[string]bool, len(oldMetrics))
	for n := range oldMetrics {
		oldNames[n] = true
	}
	newNames := make(map[string]bool, len(newMetrics))
	for n := range newMetrics {
		newNames[n] = true
	}

	for _, name := range sortedUnion(oldNames, newNames) {
		path := "metrics/" + name
		oldMetric, inOld := oldMetrics[name]
		newMetric, inNew := newMetrics[name]

		switch {
		case inOld && !inNew:
			d.add(path, MetricRemoved, Breaking, name, "")
		case !inOld && inNew:
			d.add(path, MetricAdded, NonBreaking, "", name)
		default:
			// Numeric meaning may differ even for cosmetic edits.
			if oldMetric.Expression != newMetric.Expression {
				d.add(path+"/expression", MetricExpressionChanged, Breaking,
					oldMetric.Expression, newMetric.Expression)
			}
			if !stringSetsEqual(oldMetric.Grain, newMetric.Grain) {
				d.add(path+"/grain", MetricGrainChanged, Breaking,
					strings.Join(oldMetric.Grain, ","), strings.Join(newMetric.Grain, ","))
			}
			if oldMetric.Description != newMetric.Description {
				d.add(path, MetricDescriptionChanged, NonBreaking,
					oldMetric.Description, newMetric.Description)
			}
		}
	}
}

func (d *differ) dimensions(oldIR, newIR *odl.IR) {
	oldDims := make(map[string]*odl.Dimension, len(oldIR.Dimensions))
	for i := range oldIR.Dimensions {
		oldDims[oldIR.Dimensions[i].Name] = &oldIR.Dimensions[i]
	}
	newDims := make(map[string]*odl.Dimension, len(newIR.Dimensions))
	for i := range newIR.Dimensions {
		newDims[newIR.Dimensions[i].Name] = &newIR.Dimensions[i]
	}

	oldNames := make(map[string]bool, len(oldDims))
	for n := range oldDims {
		oldNames[n] = true
	}
	newNames := make(map[string]bool, len(newDims))
	for n := range newDims {
		newNames[n] = true
	}

	for _, name := range sortedUnion(oldNames, newNames) {
		path := "dimensions/" + name
		oldDim, inOld := oldDims[name]
		newDim, inNew := newDims[name]

		switch {
		case inOld && !inNew:
			d.add(path, DimensionRemoved, Breaking, name, "")
		case !inOld && inNew:
			d.add(path, DimensionAdded, NonBreaking, "", name)
		default:
			if oldDim.SourceProperty != newDim.SourceProperty {
				d.add(path+"/sourceProperty", DimensionSourceChanged, Breaking,
					oldDim.SourceProperty, newDim.SourceProperty)
			}
			if oldDim.Description != newDim.Description {
				d.add(path, DimensionDescriptionChanged, NonBreaking,
					oldDim.Description, newDim.Description)
			}
		}
	}
}
