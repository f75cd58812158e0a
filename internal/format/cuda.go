package format

// CUDA launch parameter markers used in the `extra` list of kernel launches.
const (
	LaunchParamEnd           = "CU_LAUNCH_PARAM_END"
	LaunchParamBufferPointer = "CU_LAUNCH_PARAM_BUFFER_POINTER"
	LaunchParamBufferSize    = "CU_LAUNCH_PARAM_BUFFER_SIZE"
)

// CUDAOverrides returns the argument overrides for the embedded CUDA
// catalog. Each call returns a fresh table.
func CUDAOverrides() Overrides {
	extra := SentinelList{
		End:           LaunchParamEnd,
		BufferPointer: LaunchParamBufferPointer,
		BufferSize:    LaunchParamBufferSize,
	}
	attrValue := ArgTaggedUnion{Tag: 1}

	return Overrides{
		// JIT options and their values, counted by numOptions.
		{"cuLinkCreate_v2", 1}:    CountArray{Count: 0},
		{"cuLinkCreate_v2", 2}:    CountArray{Count: 0},
		{"cuLinkAddData_v2", 6}:   CountArray{Count: 5},
		{"cuLinkAddData_v2", 7}:   CountArray{Count: 5},
		{"cuModuleLoadDataEx", 3}: CountArray{Count: 2},
		{"cuModuleLoadDataEx", 4}: CountArray{Count: 2},

		{"cuStreamBatchMemOp", 2}: CountArray{Count: 1, Bracketed: true},

		{"cuLaunchKernel", 10}:  extra,
		{"cuLaunchKernelEx", 3}: extra,

		{"cuDeviceGetLuid", 0}: LUID{},

		{"cuStreamGetAttribute", 2}:          attrValue,
		{"cuStreamGetAttribute_ptsz", 2}:     attrValue,
		{"cuStreamSetAttribute", 2}:          attrValue,
		{"cuStreamSetAttribute_ptsz", 2}:     attrValue,
		{"cuGraphKernelNodeGetAttribute", 2}: attrValue,
		{"cuGraphKernelNodeSetAttribute", 2}: attrValue,

		{"cuCtxCreate_v3", 1}:          Unsupported{},
		{"cuCtxGetExecAffinity", 0}:    Unsupported{},
		{"cuMemMapArrayAsync", 0}:      Unsupported{},
		{"cuMemMapArrayAsync_ptsz", 0}: Unsupported{},
	}
}
